package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/memory/v2"
	"github.com/gofiber/storage/redis/v3"
	"github.com/matchguard/matchguard/internal/accounts"
	"github.com/matchguard/matchguard/internal/auth"
	"github.com/matchguard/matchguard/internal/common"
	"github.com/matchguard/matchguard/internal/config"
	"github.com/matchguard/matchguard/internal/devices"
	"github.com/matchguard/matchguard/internal/dispatch"
	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/handlers/api"
	"github.com/matchguard/matchguard/internal/lockout"
	"github.com/matchguard/matchguard/internal/middlewares"
	"github.com/matchguard/matchguard/internal/risk"
	"github.com/matchguard/matchguard/internal/sessions"
	"github.com/matchguard/matchguard/internal/store"
	"github.com/matchguard/matchguard/internal/twofactor"
	"github.com/matchguard/matchguard/model"
	"github.com/matchguard/matchguard/params"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "matchguard - account security and risk scoring service"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Failed to access connection pool", "error", err)
		os.Exit(1)
	}
	if dbConfig.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
	}
	if dbConfig.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
	}
	if dbConfig.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(dbConfig.ConnMaxIdleTime) * time.Second)
	}
	if dbConfig.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
	}

	if err := db.AutoMigrate(model.Models...); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitSMSSender(dispatchCfg config.DispatchConfig) dispatch.Sender {
	switch dispatchCfg.SMSBackend {
	case "http":
		return dispatch.NewHTTPSMSSender(dispatchCfg.SMS.GatewayURL, dispatchCfg.SMS.APIKey, dispatchCfg.SMS.SenderID)
	case "smtp":
		// SMS-over-email gateways, used in some staging setups
		return dispatch.NewSMTPSender(dispatchCfg.SMTP.Host, dispatchCfg.SMTP.Port,
			dispatchCfg.SMTP.Username, dispatchCfg.SMTP.Password, dispatchCfg.SMTP.From)
	case "":
		return dispatch.NullSender{}
	default:
		slog.Error("Unsupported SMS backend", "backend", dispatchCfg.SMSBackend)
		os.Exit(1)
		return nil
	}
}

func setupAPIRoutes(
	router fiber.Router,
	policy *auth.Policy,
	sessionConfig sessions.Config,
	userService *accounts.Service,
	twoFactorService *twofactor.Service,
	deviceService *devices.Engine,
	riskCollector *risk.Collector,
	scorer *risk.Scorer,
	lockoutService *lockout.Service,
	eventService *events.Pipeline) {

	// handlers
	var (
		authHandler      = api.NewAuthHandler(userService, twoFactorService, deviceService, riskCollector, scorer, lockoutService, eventService)
		twofactorHandler = api.NewTwoFactorHandler(userService, twoFactorService)
		accountHandler   = api.NewAccountHandler(userService, deviceService, eventService)
		adminHandler     = api.NewAdminHandler(policy, eventService, lockoutService, deviceService)
	)

	router.Use(sessions.Initialize(sessionConfig))

	// authentication
	router.Post("/auth/register", authHandler.PostRegister)
	router.Post("/auth/login", authHandler.PostLogin)
	router.Post("/auth/login/verify", authHandler.PostLoginVerify)
	router.Post("/auth/logout", authHandler.PostLogout)
	router.Get("/auth/session", authHandler.GetSession)
	router.Post("/auth/unlock", authHandler.PostUnlock)

	// 2FA challenge resend works while the session is still pending
	router.Post("/auth/login/challenge/sms", twofactorHandler.PostChallengeSMS)

	// self-service, fully authenticated sessions only
	account := router.Group("/account", api.RequireAuth())
	account.Get("/", accountHandler.GetProfile)
	account.Post("/password", accountHandler.PostChangePassword)
	account.Get("/devices", accountHandler.GetDevices)
	account.Post("/devices/:id/trust", accountHandler.PostDeviceTrust)
	account.Get("/questions", accountHandler.GetSecurityQuestions)
	account.Post("/questions", accountHandler.PostSecurityQuestions)
	account.Post("/delete", accountHandler.PostRequestDeletion)
	account.Post("/delete/cancel", accountHandler.PostCancelDeletion)
	account.Post("/export", accountHandler.PostRequestExport)
	account.Get("/2fa", twofactorHandler.GetStatus)
	account.Post("/2fa/totp/enroll", twofactorHandler.PostEnrollTOTP)
	account.Post("/2fa/sms/enroll", twofactorHandler.PostEnrollSMS)
	account.Post("/2fa/enroll/confirm", twofactorHandler.PostEnrollConfirm)
	account.Post("/2fa/disable", twofactorHandler.PostDisable)
	account.Post("/2fa/backup-codes", twofactorHandler.PostBackupCodes)

	// token-authorized, no session needed
	router.Get("/account/export", accountHandler.GetExport)

	// dashboard and moderation
	admin := router.Group("/admin", api.RequireCapability(policy, auth.CapAdminRead))
	admin.Get("/overview", adminHandler.GetOverview)
	admin.Get("/events", adminHandler.GetEvents)
	admin.Get("/threats", adminHandler.GetTopThreats)
	admin.Get("/risk-ranking", adminHandler.GetRiskRanking)
	admin.Get("/blocked-ips", adminHandler.GetBlockedIPs)
	admin.Get("/users/:id/locks", adminHandler.GetLockHistory)
	admin.Post("/events/:id/resolve", api.RequireCapability(policy, auth.CapEventResolve), adminHandler.PostResolveEvent)
	admin.Post("/users/:id/lock", api.RequireCapability(policy, auth.CapAdminWrite), adminHandler.PostLockUser)
	admin.Post("/users/:id/unlock", api.RequireCapability(policy, auth.CapAdminWrite), adminHandler.PostUnlockUser)
	admin.Post("/users/:id/flag", api.RequireCapability(policy, auth.CapAdminWrite), adminHandler.PostFlagUser)
	admin.Post("/fraud-report", api.RequireCapability(policy, auth.CapAdminWrite), adminHandler.PostFraudReport)
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	db := mustInitDatabase(cfg.MySQL)

	// hot storage: redis in production, in-process memory when no redis
	// is configured (single-node development only)
	var (
		cacheStorage   store.Storage
		limiterStorage fiber.Storage
		redisClient    goredis.UniversalClient
	)
	if cfg.Redis.URL != "" {
		redisStorage := redis.New(redis.Config{
			URL:           cfg.Redis.URL,
			PoolSize:      cfg.Redis.PoolSize,
			IsClusterMode: cfg.Redis.ClusterMode,
		})
		redisClient = redisStorage.Conn()
		cacheStorage = store.NewRedisStorage(redisClient)
		limiterStorage = redisStorage
	} else {
		slog.Warn("No redis configured, using in-process storage")
		cacheStorage = store.NewMemoryStorage()
		limiterStorage = memory.New()
	}

	smsSender := mustInitSMSSender(cfg.Dispatch)
	policy := auth.NewPolicy()

	// repositories
	var (
		userRepo     = accounts.NewUserRepository(db)
		questionRepo = accounts.NewQuestionRepository(db)
		deviceRepo   = devices.NewDeviceRepository(db)
		eventRepo    = events.NewEventRepository(db)
		lockRepo     = lockout.NewLockRepository(db)
		twoFARepo    = twofactor.NewConfigRepository(db)
	)

	// services
	var (
		eventService     = events.NewPipeline(cacheStorage, eventRepo)
		userService      = accounts.NewService(userRepo, questionRepo, cfg.MasterKey)
		deviceService    = devices.NewEngine(deviceRepo)
		riskCollector    = risk.NewCollector(cacheStorage, eventRepo)
		scorer           = risk.NewScorer(cfg.Risk)
		twoFactorService = twofactor.NewService(twoFARepo, cacheStorage, smsSender, userService, eventService, cfg.MasterKey, cfg.SiteName)
		lockoutService   = lockout.NewService(lockRepo, cacheStorage, userService, eventService, lockout.LockPolicy{
			EscalationThreshold: int64(cfg.Lockout.EscalationThreshold),
			EscalationWindow:    cfg.Lockout.EscalationWindow,
			LockDuration:        cfg.Lockout.LockDuration,
			UnlockMaxAttempts:   params.TwoFactorMaxAttempts,
			UnlockWindow:        params.TwoFactorAttemptWindow,
		})
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))
	router.Use("/auth", limiter.New(limiter.Config{
		Max:        params.AuthRateLimitMax,
		Expiration: params.AuthRateLimitWindow,
		Storage:    limiterStorage,
	}))

	setupAPIRoutes(
		router,
		policy,
		sessions.Config{
			Storage:        store.StorageWithPrefix(cacheStorage, params.SessionKeyPrefix),
			SessionMaxAge:  cfg.Session.SessionMaxAge,
			CookieSecure:   cfg.Session.CookieSecure,
			CookieHttpOnly: cfg.Session.CookieHttpOnly,
			CookieName:     cfg.Session.CookieName,
		},
		userService,
		twoFactorService,
		deviceService,
		riskCollector,
		scorer,
		lockoutService,
		eventService,
	)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, redisClient, db)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
