package params

import (
	"fmt"
	"time"
)

const (
	Version = "0.3.0"
)

// VersionWithCommit returns the version string with git metadata appended.
func VersionWithCommit(gitCommit, gitDate string) string {
	vsn := Version
	if len(gitCommit) >= 8 {
		vsn += "-" + gitCommit[:8]
	}
	if gitDate != "" {
		vsn += fmt.Sprintf(" (%s)", gitDate)
	}
	return vsn
}

const (
	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	SessionKeyPrefix    = "s:"
	EnrollmentKeyPrefix = "e:"
	UserStateKeyPrefix  = "u:"
	EventSeqKeyPrefix   = "q:"
	AttemptKeyPrefix    = "a:"
	LockoutKeyPrefix    = "l:"

	HealthCheckServerAddr = ":3001"
)

// Two-factor defaults. Attempt counting uses an atomically incremented
// windowed counter so that no more than TwoFactorMaxAttempts verification
// attempts are admitted in any TwoFactorAttemptWindow, regardless of
// request concurrency.
const (
	TwoFactorMaxAttempts     = 5                // max verification attempts per window
	TwoFactorAttemptWindow   = 15 * time.Minute // attempt counting window
	TwoFactorEnrollmentTTL   = 10 * time.Minute // pending enrollment expires back to disabled
	TwoFactorSMSCodeTTL      = 10 * time.Minute // SMS one-time code lifetime
	TwoFactorSMSCodeLength   = 6
	TwoFactorBackupCodeCount = 8
	TwoFactorTOTPSkew        = 1 // accepted clock skew in 30s steps, either direction
)

// Risk scoring defaults. These are tunable policy, not hard contract;
// config values override them.
const (
	RiskWeightUnfamiliarDevice = 30
	RiskWeightGeoDistance      = 20
	RiskWeightTimeAnomaly      = 15
	RiskWeightFailedVelocity   = 25
	RiskWeightIPVelocity       = 20

	RiskChallengeThreshold = 30 // score >= challenge threshold requires 2FA
	RiskBlockThreshold     = 70 // score >= block threshold triggers lockout

	RiskGeoDistanceKm  = 500 // km from historical centroid considered anomalous
	RiskFailedAttempts = 3   // recent failed attempts considered high velocity
	RiskDistinctIPs    = 3   // distinct source IPs in a short span considered anomalous
	RiskVelocityWindow = 15 * time.Minute
	RiskFailedWindow   = 1 * time.Hour
	RiskActivityPad    = 2 // hours of tolerance around the observed activity window
)

// Lockout defaults.
const (
	EscalationThreshold = 5 // challenge-or-worse decisions within the window
	EscalationWindow    = 1 * time.Hour
	DefaultLockDuration = 30 * time.Minute

	SecurityQuestionMinCorrect  = 3
	SecurityQuestionMinRequired = 3
)

// Device trust defaults.
const (
	DeviceTrustBaseline  = 20 // trust score assigned to a newly seen fingerprint
	DeviceTrustIncrement = 5  // gained per clean authentication
	DeviceTrustMax       = 100
	DeviceTrustedAt      = 60 // score at and above which a device counts as trusted
)

const (
	AccountDeleteGracePeriod = 30 * 24 * time.Hour
	ExportTokenTTL           = 24 * time.Hour
	AuthRateLimitMax         = 20 // requests per AuthRateLimitWindow per IP
	AuthRateLimitWindow      = 1 * time.Minute
)
