package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/matchguard/matchguard/internal/accounts"
	"github.com/matchguard/matchguard/internal/devices"
	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/risk"
	"github.com/matchguard/matchguard/internal/sessions"
	"github.com/matchguard/matchguard/model"
)

// AuthHandler drives login, the 2FA challenge step, registration and
// the security-question unlock flow.
type AuthHandler struct {
	userService      UserService
	twoFactorService TwoFactorService
	deviceService    DeviceService
	riskCollector    RiskCollector
	scorer           *risk.Scorer
	lockoutService   LockoutService
	eventService     EventService
}

type loginRequest struct {
	Email    string             `json:"email" validate:"required,email"`
	Password string             `json:"password" validate:"required"`
	Device   devices.RawSignals `json:"device" validate:"required"`
	Geo      *risk.LatLon       `json:"geo"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type verifyRequest struct {
	Code string `json:"code" validate:"required,min=6,max=16"`
}

type unlockRequest struct {
	Email   string            `json:"email" validate:"required,email"`
	Answers map[string]string `json:"answers" validate:"required,min=1"`
}

type userInfoResponse struct {
	UserID        uint   `json:"userId"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

type loginResponse struct {
	Status      string            `json:"status"` // ok or 2fa_required
	User        *userInfoResponse `json:"user,omitempty"`
	TwoFAMethod string            `json:"twoFaMethod,omitempty"`
	RiskScore   int               `json:"riskScore"`
}

func newUserInfo(user *model.User) *userInfoResponse {
	return &userInfoResponse{
		UserID:        user.ID,
		Email:         user.Email,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
	}
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	ip := ctx.IP()

	user, err := h.userService.GetUserByEmail(ctx.Context(), req.Email)
	if err != nil {
		if errors.Is(err, accounts.ErrUserNotFound) {
			return accounts.ErrInvalidCredentials
		}
		return err
	}
	if err := h.lockoutService.CheckLocked(ctx.Context(), user.ID); err != nil {
		return err
	}
	if err := h.userService.VerifyPassword(ctx.Context(), user.ID, req.Password); err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			h.record(ctx, user.ID, events.TypeLoginFailure, events.SeverityMedium, map[string]any{
				"reason": "bad_password",
			})
		}
		return err
	}

	// identify the device; an unreadable device store degrades to the
	// lowest trust tier instead of failing the login outright
	riskCtx, err := h.riskCollector.Collect(ctx.Context(), user.ID, ip, time.Now(), req.Geo)
	if err != nil {
		slog.Error("risk signal collection failed", "userId", user.ID, "error", err)
		riskCtx = risk.Context{UserID: user.ID, EventHour: time.Now().Hour()}
	}
	eval, err := h.deviceService.Evaluate(ctx.Context(), user.ID, req.Device, ip)
	if err != nil {
		var lookupErr *devices.DeviceLookupError
		if !errors.As(err, &lookupErr) {
			return err
		}
		slog.Error("device lookup failed", "userId", user.ID, "error", err)
		riskCtx.DeviceLookupFail = true
	} else {
		riskCtx.DeviceKnown = !eval.IsNew
		riskCtx.DeviceTrustScore = eval.TrustScore
		if eval.IsNew {
			h.record(ctx, user.ID, events.TypeDeviceRegistered, events.SeverityLow, map[string]any{
				"deviceId": eval.Device.ID,
				"platform": eval.Device.Platform,
			})
		}
	}

	assessment := h.scorer.Score(riskCtx)
	if err := h.lockoutService.RegisterDecision(ctx.Context(), user.ID, assessment.Decision, ip); err != nil {
		slog.Error("could not register risk decision", "userId", user.ID, "error", err)
	}

	switch assessment.Decision {
	case risk.DecisionBlock:
		h.record(ctx, user.ID, events.TypeRiskBlock, events.SeverityHigh, map[string]any{
			"score":   assessment.Score,
			"signals": assessment.Signals,
		})
		return fiber.NewError(fiber.StatusForbidden, "Login blocked by risk policy")
	case risk.DecisionChallenge:
		h.record(ctx, user.ID, events.TypeRiskChallenge, events.SeverityMedium, map[string]any{
			"score":   assessment.Score,
			"signals": assessment.Signals,
		})
		cfg, err := h.twoFactorService.Status(ctx.Context(), user.ID)
		if err != nil {
			return err
		}
		if cfg.Enabled() {
			return h.startChallenge(ctx, user, eval, assessment, cfg.Method)
		}
		// no second factor enrolled; the challenge is recorded for the
		// dashboard and the login proceeds
	}

	return h.finishLogin(ctx, user, eval, req.Geo, assessment)
}

// startChallenge parks the session in the 2FA-pending state. For SMS the
// code is dispatched immediately.
func (h *AuthHandler) startChallenge(ctx *fiber.Ctx, user *model.User, eval *devices.Evaluation, assessment risk.Assessment, method string) error {
	if method == model.TwoFactorMethodSMS {
		if _, err := h.twoFactorService.ChallengeSMS(ctx.Context(), user.ID); err != nil {
			return err
		}
	}
	data := sessions.SessionData{
		IP:            ctx.IP(),
		UserID:        user.ID,
		Role:          user.Role,
		LoginTime:     time.Now(),
		TwoFARequired: true,
		TwoFAMethod:   method,
		RiskScore:     assessment.Score,
	}
	if eval != nil {
		data.DeviceID = eval.Device.FingerprintHash
	}
	if _, err := sessions.Reset(ctx, data); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(loginResponse{
		Status:      "2fa_required",
		TwoFAMethod: method,
		RiskScore:   assessment.Score,
	}))
}

func (h *AuthHandler) finishLogin(ctx *fiber.Ctx, user *model.User, eval *devices.Evaluation, geo *risk.LatLon, assessment risk.Assessment) error {
	now := time.Now()
	if eval != nil {
		if err := h.deviceService.RecordCleanAuth(ctx.Context(), eval.Device, ctx.IP()); err != nil {
			slog.Error("could not update device trust", "userId", user.ID, "error", err)
		}
	}
	if err := h.riskCollector.RecordSuccess(ctx.Context(), user.ID, now, geo); err != nil {
		slog.Error("could not update signal history", "userId", user.ID, "error", err)
	}
	h.record(ctx, user.ID, events.TypeLoginSuccess, events.SeverityLow, map[string]any{
		"score": assessment.Score,
	})

	data := sessions.SessionData{
		IP:        ctx.IP(),
		UserID:    user.ID,
		Role:      user.Role,
		LoginTime: now,
		RiskScore: assessment.Score,
	}
	if eval != nil {
		data.DeviceID = eval.Device.FingerprintHash
	}
	if _, err := sessions.Reset(ctx, data); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(loginResponse{
		Status:    "ok",
		User:      newUserInfo(user),
		RiskScore: assessment.Score,
	}))
}

// PostLoginVerify completes a login that was parked on a 2FA challenge.
func (h *AuthHandler) PostLoginVerify(ctx *fiber.Ctx) error {
	var req verifyRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	sess := sessions.Get(ctx)
	if !sess.Is2FARequired() {
		return fiber.NewError(fiber.StatusBadRequest, "No pending challenge")
	}
	// the account may have been locked since the challenge was issued
	if err := h.lockoutService.CheckLocked(ctx.Context(), sess.UserID); err != nil {
		return err
	}
	if err := h.twoFactorService.Verify(ctx.Context(), sess.UserID, req.Code, ctx.IP()); err != nil {
		return err
	}
	user, err := h.userService.GetUser(ctx.Context(), sess.UserID)
	if err != nil {
		return err
	}

	sess.TwoFARequired = false
	sess.TwoFAMethod = ""
	if err := sessions.Save(ctx, sess.SessionData); err != nil {
		return err
	}
	if err := h.riskCollector.RecordSuccess(ctx.Context(), user.ID, time.Now(), nil); err != nil {
		slog.Error("could not update signal history", "userId", user.ID, "error", err)
	}
	h.record(ctx, user.ID, events.TypeLoginSuccess, events.SeverityLow, map[string]any{
		"afterChallenge": true,
	})
	return ctx.JSON(NewDataResponse(loginResponse{
		Status:    "ok",
		User:      newUserInfo(user),
		RiskScore: sess.RiskScore,
	}))
}

func (h *AuthHandler) PostRegister(ctx *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	user, err := h.userService.Register(ctx.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(newUserInfo(user)))
}

func (h *AuthHandler) PostLogout(ctx *fiber.Ctx) error {
	if err := sessions.Destroy(ctx); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "ok"}))
}

// GetSession lets clients introspect their authentication state.
func (h *AuthHandler) GetSession(ctx *fiber.Ctx) error {
	sess := sessions.Get(ctx)
	if !sess.IsLoggedIn() {
		return fiber.ErrUnauthorized
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"userId":        sess.UserID,
		"role":          sess.Role,
		"twoFaRequired": sess.TwoFARequired,
		"loginTime":     sess.LoginTime,
		"riskScore":     sess.RiskScore,
	}))
}

// PostUnlock lets a locked-out user recover with security questions. The
// response does not reveal whether the account exists.
func (h *AuthHandler) PostUnlock(ctx *fiber.Ctx) error {
	var req unlockRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	user, err := h.userService.GetUserByEmail(ctx.Context(), req.Email)
	if err != nil {
		if errors.Is(err, accounts.ErrUserNotFound) {
			return accounts.ErrQuestionVerifyFail
		}
		return err
	}
	if err := h.lockoutService.UnlockWithQuestions(ctx.Context(), user.ID, req.Answers, ctx.IP()); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "unlocked"}))
}

func (h *AuthHandler) record(ctx *fiber.Ctx, userID uint, eventType events.EventType, severity events.Severity, data map[string]any) {
	if _, err := h.eventService.Record(ctx.Context(), events.Event{
		UserID:    userID,
		Type:      eventType,
		Severity:  severity,
		Data:      data,
		IPAddress: ctx.IP(),
	}); err != nil {
		slog.Error("could not record auth event", "type", eventType, "userId", userID, "error", err)
	}
}

func NewAuthHandler(userService UserService, twoFactorService TwoFactorService, deviceService DeviceService,
	riskCollector RiskCollector, scorer *risk.Scorer, lockoutService LockoutService, eventService EventService) *AuthHandler {
	return &AuthHandler{
		userService:      userService,
		twoFactorService: twoFactorService,
		deviceService:    deviceService,
		riskCollector:    riskCollector,
		scorer:           scorer,
		lockoutService:   lockoutService,
		eventService:     eventService,
	}
}
