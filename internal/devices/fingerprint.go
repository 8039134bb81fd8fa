package devices

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// RawSignals are the client and network attributes a fingerprint is
// derived from. None of them is unique on its own; the combination is
// stable enough to recognize a returning device but collisions across
// distinct physical devices are expected and tolerated.
type RawSignals struct {
	Platform     string   `json:"platform" validate:"required"`
	OSVersion    string   `json:"osVersion"`
	ScreenWidth  int      `json:"screenWidth"`
	ScreenHeight int      `json:"screenHeight"`
	PixelRatio   float64  `json:"pixelRatio"`
	Language     string   `json:"language"`
	Timezone     string   `json:"timezone"`
	Capabilities []string `json:"capabilities"`
	NetworkClass string   `json:"networkClass"` // wifi, cellular, unknown
}

// Fingerprint derives a stable hash from the raw signals. The attribute
// order is fixed and capabilities are sorted so equivalent devices always
// produce the same hash.
func Fingerprint(signals RawSignals) string {
	caps := append([]string(nil), signals.Capabilities...)
	sort.Strings(caps)

	var b strings.Builder
	b.WriteString(strings.ToLower(signals.Platform))
	b.WriteByte('|')
	b.WriteString(signals.OSVersion)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(signals.ScreenWidth))
	b.WriteByte('x')
	b.WriteString(strconv.Itoa(signals.ScreenHeight))
	b.WriteByte('@')
	b.WriteString(strconv.FormatFloat(signals.PixelRatio, 'f', 2, 64))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(signals.Language))
	b.WriteByte('|')
	b.WriteString(signals.Timezone)
	b.WriteByte('|')
	b.WriteString(strings.Join(caps, ","))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(signals.NetworkClass))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
