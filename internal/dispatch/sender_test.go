package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskDestination(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15551234567", "********4567"},
		{"1234", "****"},
		{"alice@example.com", "al***@example.com"},
		{"al@example.com", "***@example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskDestination(tt.in), "input %q", tt.in)
	}
}
