package risk

import (
	"github.com/matchguard/matchguard/internal/config"
	"github.com/matchguard/matchguard/params"
)

type Decision string

const (
	DecisionAllow     Decision = "allow"
	DecisionChallenge Decision = "challenge"
	DecisionBlock     Decision = "block"
)

// AtLeastChallenge reports whether the decision requires 2FA or worse.
func (d Decision) AtLeastChallenge() bool {
	return d == DecisionChallenge || d == DecisionBlock
}

const (
	SignalUnfamiliarDevice = "unfamiliar_device"
	SignalGeoDistance      = "geo_distance"
	SignalTimeAnomaly      = "time_anomaly"
	SignalFailedVelocity   = "failed_velocity"
	SignalIPVelocity       = "ip_velocity"
)

// Context carries the signals for one authentication or activity event.
// Pointer fields are optional: a nil signal is excluded from scoring
// rather than treated as anomalous.
type Context struct {
	UserID uint

	// device
	DeviceKnown      bool
	DeviceTrustScore int
	DeviceLookupFail bool // store failure, forces at least a challenge

	// geolocation, km from the user's historical centroid
	GeoDistanceKm *float64

	// local hour of the event and the user's observed activity window;
	// nil window means no history yet
	EventHour      int
	ActivityWindow *ActivityWindow

	// velocity over recent history
	FailedAttempts1h *int
	DistinctIPs15m   *int
}

// ActivityWindow is the span of local hours in which the user is normally
// active, learned from their event history.
type ActivityWindow struct {
	StartHour int
	EndHour   int
}

// Contains reports whether the hour falls inside the window, padded by the
// configured tolerance. Windows may wrap midnight.
func (w ActivityWindow) Contains(hour, pad int) bool {
	start := (w.StartHour - pad + 24) % 24
	end := (w.EndHour + pad) % 24
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// Assessment is the outcome of scoring one event. It is ephemeral; the
// caller persists the decision as a SecurityEvent, not the assessment.
type Assessment struct {
	UserID   uint
	Signals  map[string]float64
	Score    int
	Decision Decision
}

// Scorer computes risk assessments. Scoring is a deterministic, pure
// function of the supplied context; all persistence happens in the caller.
type Scorer struct {
	cfg config.RiskConfig
}

// Score aggregates the triggered signal weights, clamps to [0,100] and
// maps thresholds inclusively: score >= BlockThreshold blocks, score >=
// ChallengeThreshold challenges.
func (s *Scorer) Score(ctx Context) Assessment {
	signals := make(map[string]float64)
	total := 0

	if !ctx.DeviceKnown || ctx.DeviceLookupFail {
		// scale the device weight down as trust grows on known devices;
		// an unknown or unreadable device contributes the full weight
		signals[SignalUnfamiliarDevice] = float64(s.cfg.WeightUnfamiliarDevice)
		total += s.cfg.WeightUnfamiliarDevice
	} else if ctx.DeviceTrustScore < params.DeviceTrustedAt {
		partial := s.cfg.WeightUnfamiliarDevice * (params.DeviceTrustedAt - ctx.DeviceTrustScore) / params.DeviceTrustedAt
		if partial > 0 {
			signals[SignalUnfamiliarDevice] = float64(partial)
			total += partial
		}
	}

	if ctx.GeoDistanceKm != nil && *ctx.GeoDistanceKm >= s.cfg.GeoDistanceKm {
		signals[SignalGeoDistance] = float64(s.cfg.WeightGeoDistance)
		total += s.cfg.WeightGeoDistance
	}

	if ctx.ActivityWindow != nil && !ctx.ActivityWindow.Contains(ctx.EventHour, params.RiskActivityPad) {
		signals[SignalTimeAnomaly] = float64(s.cfg.WeightTimeAnomaly)
		total += s.cfg.WeightTimeAnomaly
	}

	if ctx.FailedAttempts1h != nil && *ctx.FailedAttempts1h >= s.cfg.FailedAttempts {
		signals[SignalFailedVelocity] = float64(s.cfg.WeightFailedVelocity)
		total += s.cfg.WeightFailedVelocity
	}

	if ctx.DistinctIPs15m != nil && *ctx.DistinctIPs15m >= s.cfg.DistinctIPs {
		signals[SignalIPVelocity] = float64(s.cfg.WeightIPVelocity)
		total += s.cfg.WeightIPVelocity
	}

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	decision := DecisionAllow
	switch {
	case total >= s.cfg.BlockThreshold:
		decision = DecisionBlock
	case total >= s.cfg.ChallengeThreshold:
		decision = DecisionChallenge
	}

	// an unreadable device store must never let a request through
	// unchallenged, whatever the other signals say
	if ctx.DeviceLookupFail && decision == DecisionAllow {
		decision = DecisionChallenge
	}

	return Assessment{
		UserID:   ctx.UserID,
		Signals:  signals,
		Score:    total,
		Decision: decision,
	}
}

func NewScorer(cfg config.RiskConfig) *Scorer {
	return &Scorer{cfg: cfg}
}
