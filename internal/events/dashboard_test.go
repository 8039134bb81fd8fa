package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvents(t *testing.T, pipeline *Pipeline) {
	t.Helper()
	ctx := context.Background()
	seed := []Event{
		{UserID: 1, Type: TypeLoginFailure, Severity: SeverityLow, IPAddress: "203.0.113.5"},
		{UserID: 1, Type: TypeRiskChallenge, Severity: SeverityMedium, IPAddress: "203.0.113.5"},
		{UserID: 1, Type: TypeRiskBlock, Severity: SeverityHigh, IPAddress: "203.0.113.42"},
		{UserID: 2, Type: TypeRiskBlock, Severity: SeverityHigh, IPAddress: "203.0.113.42"},
		{UserID: 2, Type: TypeAccountLocked, Severity: SeverityCritical, IPAddress: "203.0.113.42"},
		{UserID: 3, Type: TypeLoginSuccess, Severity: SeverityLow, IPAddress: "198.51.100.7"},
	}
	for _, ev := range seed {
		_, err := pipeline.Record(ctx, ev)
		require.NoError(t, err)
	}
}

func window() (time.Time, time.Time) {
	return time.Now().Add(-time.Hour), time.Now().Add(time.Hour)
}

func TestOverviewCounts(t *testing.T) {
	pipeline := newTestPipeline(&fakeEventRepo{})
	seedEvents(t, pipeline)
	since, until := window()

	overview, err := pipeline.Overview(context.Background(), since, until)
	require.NoError(t, err)
	assert.Equal(t, 6, overview.TotalEvents)
	assert.Equal(t, 6, overview.Unresolved)
	assert.Equal(t, 2, overview.BySeverity["low"])
	assert.Equal(t, 1, overview.BySeverity["medium"])
	assert.Equal(t, 2, overview.BySeverity["high"])
	assert.Equal(t, 1, overview.BySeverity["critical"])
}

func TestTopThreatsOrdering(t *testing.T) {
	pipeline := newTestPipeline(&fakeEventRepo{})
	seedEvents(t, pipeline)
	since, until := window()

	threats, err := pipeline.TopThreats(context.Background(), since, until, 2)
	require.NoError(t, err)
	require.Len(t, threats, 2)
	assert.Equal(t, string(TypeRiskBlock), threats[0].EventType)
	assert.Equal(t, 2, threats[0].Count)
	assert.Equal(t, "high", threats[0].MaxSeverity)
}

func TestRiskRankingWeighsSeverity(t *testing.T) {
	pipeline := newTestPipeline(&fakeEventRepo{})
	seedEvents(t, pipeline)
	since, until := window()

	ranking, err := pipeline.RiskRanking(context.Background(), since, until, 0)
	require.NoError(t, err)
	require.Len(t, ranking, 3)

	// user 2: high(7) + critical(15) = 22 outweighs
	// user 1: low(1) + medium(3) + high(7) = 11
	assert.Equal(t, uint(2), ranking[0].UserID)
	assert.Equal(t, 22, ranking[0].RiskWeight)
	assert.Equal(t, "critical", ranking[0].Worst)
	assert.Equal(t, uint(1), ranking[1].UserID)
	assert.Equal(t, 11, ranking[1].RiskWeight)
}

func TestBlockedIPsOnlyCountBlockEvents(t *testing.T) {
	pipeline := newTestPipeline(&fakeEventRepo{})
	seedEvents(t, pipeline)
	since, until := window()

	blocked, err := pipeline.BlockedIPs(context.Background(), since, until)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "203.0.113.42", blocked[0].IPAddress)
	assert.Equal(t, 3, blocked[0].Count)
}

func TestMaskIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.42", "203.0.113.***"},
		{"10.0.0.1", "10.0.0.***"},
		{"2001:db8:abcd:12:34:56:78:90", "2001:db8:abcd:12:***"},
		{"not-an-ip", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskIP(tt.in), "input %q", tt.in)
	}
}
