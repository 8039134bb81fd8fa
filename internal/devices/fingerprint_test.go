package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseSignals() RawSignals {
	return RawSignals{
		Platform:     "iOS",
		OSVersion:    "17.4",
		ScreenWidth:  390,
		ScreenHeight: 844,
		PixelRatio:   3,
		Language:     "en-US",
		Timezone:     "America/New_York",
		Capabilities: []string{"faceid", "push", "camera"},
		NetworkClass: "wifi",
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(baseSignals())
	b := Fingerprint(baseSignals())
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintIgnoresCapabilityOrder(t *testing.T) {
	a := baseSignals()
	b := baseSignals()
	b.Capabilities = []string{"push", "camera", "faceid"}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintCaseInsensitivePlatform(t *testing.T) {
	a := baseSignals()
	b := baseSignals()
	b.Platform = "ios"
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintChangesWithSignals(t *testing.T) {
	a := baseSignals()
	b := baseSignals()
	b.ScreenWidth = 430
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))

	c := baseSignals()
	c.NetworkClass = "cellular"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}
