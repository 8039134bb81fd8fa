package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matchguard/matchguard/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, "masterKey: test\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, params.RiskWeightUnfamiliarDevice, cfg.Risk.WeightUnfamiliarDevice)
	assert.Equal(t, params.RiskChallengeThreshold, cfg.Risk.ChallengeThreshold)
	assert.Equal(t, params.RiskBlockThreshold, cfg.Risk.BlockThreshold)
	assert.Equal(t, params.EscalationThreshold, cfg.Lockout.EscalationThreshold)
	assert.Equal(t, params.DefaultLockDuration, cfg.Lockout.LockDuration)
}

func TestLoadConfigExplicitZeroOverride(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, `
masterKey: test
risk:
  weightGeoDistance: 0
  blockThreshold: 80
lockout:
  escalationWindow: 30m
`))
	require.NoError(t, err)

	// an operator can disable a weight outright
	assert.Equal(t, 0, cfg.Risk.WeightGeoDistance)
	assert.Equal(t, 80, cfg.Risk.BlockThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Lockout.EscalationWindow)

	// untouched tunables keep their defaults
	assert.Equal(t, params.RiskWeightFailedVelocity, cfg.Risk.WeightFailedVelocity)
	assert.Equal(t, params.DefaultLockDuration, cfg.Lockout.LockDuration)
}
