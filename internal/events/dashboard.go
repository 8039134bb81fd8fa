package events

import (
	"context"
	"sort"
	"time"
)

// ThreatSummary aggregates one event type within a window.
type ThreatSummary struct {
	EventType   string `json:"eventType"`
	Count       int    `json:"count"`
	MaxSeverity string `json:"maxSeverity"`
	Unresolved  int    `json:"unresolved"`
}

// UserRisk ranks a user by the weight of their events within a window.
type UserRisk struct {
	UserID     uint   `json:"userId"`
	EventCount int    `json:"eventCount"`
	RiskWeight int    `json:"riskWeight"`
	Worst      string `json:"worstSeverity"`
}

// BlockedIP is a source address that triggered block-level decisions.
type BlockedIP struct {
	IPAddress string    `json:"ipAddress"`
	Count     int       `json:"count"`
	LastSeen  time.Time `json:"lastSeen"`
}

// Overview summarizes the event log within a window.
type Overview struct {
	TotalEvents int            `json:"totalEvents"`
	Unresolved  int            `json:"unresolved"`
	BySeverity  map[string]int `json:"bySeverity"`
}

var severityWeights = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   3,
	SeverityHigh:     7,
	SeverityCritical: 15,
}

// Dashboard aggregates are derived views over the event log: each call
// re-scans the requested window instead of maintaining counters that could
// drift from the source of truth.

func (p *Pipeline) Overview(ctx context.Context, since, until time.Time) (*Overview, error) {
	rows, err := p.repo.ListWindow(ctx, since, until)
	if err != nil {
		return nil, err
	}
	out := &Overview{BySeverity: make(map[string]int)}
	for _, row := range rows {
		out.TotalEvents++
		out.BySeverity[row.Severity]++
		if !row.Resolved {
			out.Unresolved++
		}
	}
	return out, nil
}

func (p *Pipeline) TopThreats(ctx context.Context, since, until time.Time, limit int) ([]ThreatSummary, error) {
	rows, err := p.repo.ListWindow(ctx, since, until)
	if err != nil {
		return nil, err
	}

	byType := make(map[string]*ThreatSummary)
	for _, row := range rows {
		summary := byType[row.EventType]
		if summary == nil {
			summary = &ThreatSummary{EventType: row.EventType, MaxSeverity: row.Severity}
			byType[row.EventType] = summary
		}
		summary.Count++
		if Severity(row.Severity).Rank() > Severity(summary.MaxSeverity).Rank() {
			summary.MaxSeverity = row.Severity
		}
		if !row.Resolved {
			summary.Unresolved++
		}
	}

	out := make([]ThreatSummary, 0, len(byType))
	for _, summary := range byType {
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].EventType < out[j].EventType
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Pipeline) RiskRanking(ctx context.Context, since, until time.Time, limit int) ([]UserRisk, error) {
	rows, err := p.repo.ListWindow(ctx, since, until)
	if err != nil {
		return nil, err
	}

	byUser := make(map[uint]*UserRisk)
	for _, row := range rows {
		if row.UserID == 0 {
			continue
		}
		risk := byUser[row.UserID]
		if risk == nil {
			risk = &UserRisk{UserID: row.UserID, Worst: row.Severity}
			byUser[row.UserID] = risk
		}
		risk.EventCount++
		risk.RiskWeight += severityWeights[Severity(row.Severity)]
		if Severity(row.Severity).Rank() > Severity(risk.Worst).Rank() {
			risk.Worst = row.Severity
		}
	}

	out := make([]UserRisk, 0, len(byUser))
	for _, risk := range byUser {
		out = append(out, *risk)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskWeight != out[j].RiskWeight {
			return out[i].RiskWeight > out[j].RiskWeight
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Pipeline) BlockedIPs(ctx context.Context, since, until time.Time) ([]BlockedIP, error) {
	rows, err := p.repo.ListWindow(ctx, since, until)
	if err != nil {
		return nil, err
	}

	byIP := make(map[string]*BlockedIP)
	for _, row := range rows {
		if EventType(row.EventType) != TypeRiskBlock && EventType(row.EventType) != TypeAccountLocked {
			continue
		}
		if row.IPAddress == "" {
			continue
		}
		blocked := byIP[row.IPAddress]
		if blocked == nil {
			blocked = &BlockedIP{IPAddress: row.IPAddress}
			byIP[row.IPAddress] = blocked
		}
		blocked.Count++
		if row.CreatedAt.After(blocked.LastSeen) {
			blocked.LastSeen = row.CreatedAt
		}
	}

	out := make([]BlockedIP, 0, len(byIP))
	for _, blocked := range byIP {
		out = append(out, *blocked)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IPAddress < out[j].IPAddress
	})
	return out, nil
}
