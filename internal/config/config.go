package config

import (
	"strings"
	"time"

	"github.com/matchguard/matchguard/params"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr   = ":3000"
	DefaultCookieMaxAge = 7 * 24 * time.Hour
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type SessionConfig struct {
	SessionMaxAge  time.Duration `mapstructure:"sessionMaxAge"`
	CookieName     string        `mapstructure:"cookieName"`
	CookieHttpOnly bool          `mapstructure:"cookieHttpOnly"`
	CookieSecure   bool          `mapstructure:"cookieSecure"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SMSConfig struct {
	GatewayURL string `mapstructure:"gatewayURL"`
	APIKey     string `mapstructure:"apiKey"`
	SenderID   string `mapstructure:"senderID"`
}

// DispatchConfig selects the code-delivery backends. An empty backend name
// falls back to the null sender, which only logs.
type DispatchConfig struct {
	EmailBackend string     `mapstructure:"emailBackend"` // "smtp" or ""
	SMSBackend   string     `mapstructure:"smsBackend"`   // "http" or ""
	SMTP         SMTPConfig `mapstructure:"smtp"`
	SMS          SMSConfig  `mapstructure:"sms"`
}

// RiskConfig tunes the scoring policy. Weights and thresholds are policy
// defaults, not a fixed contract.
type RiskConfig struct {
	WeightUnfamiliarDevice int `mapstructure:"weightUnfamiliarDevice"`
	WeightGeoDistance      int `mapstructure:"weightGeoDistance"`
	WeightTimeAnomaly      int `mapstructure:"weightTimeAnomaly"`
	WeightFailedVelocity   int `mapstructure:"weightFailedVelocity"`
	WeightIPVelocity       int `mapstructure:"weightIPVelocity"`

	ChallengeThreshold int `mapstructure:"challengeThreshold"`
	BlockThreshold     int `mapstructure:"blockThreshold"`

	GeoDistanceKm  float64 `mapstructure:"geoDistanceKm"`
	FailedAttempts int     `mapstructure:"failedAttempts"`
	DistinctIPs    int     `mapstructure:"distinctIPs"`
}

type LockoutConfig struct {
	EscalationThreshold int           `mapstructure:"escalationThreshold"`
	EscalationWindow    time.Duration `mapstructure:"escalationWindow"`
	LockDuration        time.Duration `mapstructure:"lockDuration"`
}

type Config struct {
	Debug        bool           `mapstructure:"debug"`
	SiteName     string         `mapstructure:"siteName"`
	BaseURL      string         `mapstructure:"baseURL"`
	MasterKey    string         `mapstructure:"masterKey"`
	ListenAddr   string         `mapstructure:"listenAddr"`
	AllowOrigins []string       `mapstructure:"allowOrigins"`
	Redis        RedisConfig    `mapstructure:"redis"`
	MySQL        MySQLConfig    `mapstructure:"mysql"`
	Session      SessionConfig  `mapstructure:"session"`
	Dispatch     DispatchConfig `mapstructure:"dispatch"`
	Risk         RiskConfig     `mapstructure:"risk"`
	Lockout      LockoutConfig  `mapstructure:"lockout"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Session.SessionMaxAge == 0 {
		c.Session.SessionMaxAge = DefaultCookieMaxAge
	}
	return nil
}

// setDefaults registers the policy tunables with viper so an explicit
// zero in the config file is honored rather than treated as unset.
func setDefaults(v *viper.Viper) {
	v.SetDefault("risk.weightUnfamiliarDevice", params.RiskWeightUnfamiliarDevice)
	v.SetDefault("risk.weightGeoDistance", params.RiskWeightGeoDistance)
	v.SetDefault("risk.weightTimeAnomaly", params.RiskWeightTimeAnomaly)
	v.SetDefault("risk.weightFailedVelocity", params.RiskWeightFailedVelocity)
	v.SetDefault("risk.weightIPVelocity", params.RiskWeightIPVelocity)
	v.SetDefault("risk.challengeThreshold", params.RiskChallengeThreshold)
	v.SetDefault("risk.blockThreshold", params.RiskBlockThreshold)
	v.SetDefault("risk.geoDistanceKm", params.RiskGeoDistanceKm)
	v.SetDefault("risk.failedAttempts", params.RiskFailedAttempts)
	v.SetDefault("risk.distinctIPs", params.RiskDistinctIPs)
	v.SetDefault("lockout.escalationThreshold", params.EscalationThreshold)
	v.SetDefault("lockout.escalationWindow", params.EscalationWindow)
	v.SetDefault("lockout.lockDuration", params.DefaultLockDuration)
}

func LoadConfig(filename string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
