package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/matchguard/matchguard/internal/store"
)

type SessionData struct {
	IP            string    `redis:"ip"`             // client ip address at login
	UserID        uint      `redis:"user_id"`        // user id
	Role          string    `redis:"role"`           // role snapshot for authorization
	DeviceID      string    `redis:"device_id"`      // fingerprint hash of the login device
	LastSeen      time.Time `redis:"last_seen"`      // last request time
	LoginTime     time.Time `redis:"login_time"`     // last login time
	TwoFARequired bool      `redis:"twofa_required"` // second factor still pending
	TwoFAMethod   string    `redis:"twofa_method"`   // method expected for the pending challenge
	RiskScore     int       `redis:"risk_score"`     // score assigned at login
	ExpireTime    time.Time `redis:"expire_time"`    // session expire time
}

func (s *SessionData) IsLoggedIn() bool {
	return s.UserID != 0
}

func (s *SessionData) Is2FARequired() bool {
	return s.UserID != 0 && s.TwoFARequired
}

func (s *SessionData) IsAuthenticated() bool {
	return s.UserID != 0 && !s.TwoFARequired
}

type Session struct {
	SessionData               // basic session info
	id          string        // session id
	storage     store.Storage // storage backend
	fresh       bool          // is session newly created
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Error("Could not generate session id", "error", err)
		return ""
	}
	return hex.EncodeToString(b)
}

func newSession(storage store.Storage) *Session {
	return &Session{
		id:      generateSessionID(),
		storage: storage,
		fresh:   true,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) IsFresh() bool {
	return s.fresh
}

func (s *Session) SetField(ctx context.Context, field string, val any, exp ...time.Duration) error {
	return s.storage.SetAttr(ctx, s.id, field, val, exp...)
}

func (s *Session) GetField(ctx context.Context, field string, val any) error {
	return s.storage.GetAttr(ctx, s.id, field, val)
}

func (s *Session) Reset(ctx context.Context, data SessionData) error {
	if err := s.storage.Delete(ctx, s.id); err != nil {
		if err != store.ErrNotFound {
			return err
		}
	}
	s.id = generateSessionID()
	s.SessionData = data
	s.fresh = true
	return nil
}

func (s *Session) Save(ctx context.Context) error {
	return s.storage.Save(ctx, s.id, s.SessionData)
}
