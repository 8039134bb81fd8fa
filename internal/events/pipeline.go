package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/matchguard/matchguard/internal/store"
	"github.com/matchguard/matchguard/model"
	"github.com/matchguard/matchguard/params"
)

// Pipeline is the append-only security event log. Writes are ordered per
// user via an atomically incremented sequence taken before the insert, so
// the audit timeline for one user is never reordered even under concurrent
// writers.
type Pipeline struct {
	repo     EventRepository
	seqStore store.Store[struct{}]
}

// Record appends an event and returns its id. Recording failures are
// reported to the caller, but the full event is also written to the
// process log so the audit gap is recoverable.
func (p *Pipeline) Record(ctx context.Context, event Event) (uint64, error) {
	if event.Severity == "" || !event.Severity.Valid() {
		return 0, ErrInvalidSeverity
	}

	var payload string
	if event.Data != nil {
		raw, err := json.Marshal(event.Data)
		if err != nil {
			return 0, err
		}
		payload = string(raw)
	}

	row := &model.SecurityEvent{
		ID:        model.GenerateID64(),
		UserID:    event.UserID,
		EventType: string(event.Type),
		Severity:  string(event.Severity),
		Data:      payload,
		IPAddress: event.IPAddress,
	}

	if event.UserID != 0 {
		seq, err := p.seqStore.IncrAttr(ctx, userKey(event.UserID), "seq", 1)
		if err != nil {
			p.logFallback(row, err)
			return 0, ErrStoreUnavailable
		}
		row.Seq = uint64(seq)
	}

	if err := p.repo.Insert(ctx, row); err != nil {
		p.logFallback(row, err)
		return 0, err
	}
	return row.ID, nil
}

// logFallback keeps a recoverable trace of events the store refused.
func (p *Pipeline) logFallback(row *model.SecurityEvent, cause error) {
	slog.Error("security event not recorded",
		"error", cause,
		"user_id", row.UserID,
		"event_type", row.EventType,
		"severity", row.Severity,
		"ip", row.IPAddress,
		"data", row.Data,
	)
}

// Resolve sets resolution metadata on an event. The event body is never
// mutated; resolving an already-resolved event is rejected without side
// effects.
func (p *Pipeline) Resolve(ctx context.Context, eventID uint64, action string, actor uint) error {
	event, err := p.repo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Resolved {
		return ErrAlreadyResolved
	}
	affected, err := p.repo.MarkResolved(ctx, eventID, actor, action, time.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		// lost the race with a concurrent resolver
		return ErrAlreadyResolved
	}
	return nil
}

func (p *Pipeline) Get(ctx context.Context, eventID uint64) (*model.SecurityEvent, error) {
	return p.repo.GetByID(ctx, eventID)
}

func (p *Pipeline) Query(ctx context.Context, filter Filter, page Page) ([]*model.SecurityEvent, int64, error) {
	return p.repo.List(ctx, filter, page)
}

func userKey(userID uint) string {
	return "user:" + strconv.FormatUint(uint64(userID), 10)
}

func NewPipeline(storage store.Storage, repo EventRepository) *Pipeline {
	return &Pipeline{
		repo:     repo,
		seqStore: store.New[struct{}](storage, params.EventSeqKeyPrefix),
	}
}
