package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/handlers/api"
	"github.com/matchguard/matchguard/internal/lockout"
	"github.com/matchguard/matchguard/internal/middlewares"
	"github.com/matchguard/matchguard/internal/risk"
	"github.com/matchguard/matchguard/internal/sessions"
	"github.com/matchguard/matchguard/internal/store"
	"github.com/matchguard/matchguard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserService struct {
	api.UserService
	user *model.User
}

func (s *stubUserService) GetUser(ctx context.Context, userID uint) (*model.User, error) {
	return s.user, nil
}

type stubTwoFactorService struct {
	api.TwoFactorService
	verifyErr error
	verified  bool
}

func (s *stubTwoFactorService) Verify(ctx context.Context, userID uint, code, ip string) error {
	if s.verifyErr != nil {
		return s.verifyErr
	}
	s.verified = true
	return nil
}

type stubLockoutService struct {
	api.LockoutService
	lockedErr error
}

func (s *stubLockoutService) CheckLocked(ctx context.Context, userID uint) error {
	return s.lockedErr
}

type stubRiskCollector struct {
	api.RiskCollector
}

func (s *stubRiskCollector) RecordSuccess(ctx context.Context, userID uint, at time.Time, geo *risk.LatLon) error {
	return nil
}

type stubEventService struct {
	api.EventService
}

func (s *stubEventService) Record(ctx context.Context, event events.Event) (uint64, error) {
	return 1, nil
}

// newChallengeApp builds an app with a session parked on a 2FA challenge
// and returns the session cookie to replay it.
func newChallengeApp(t *testing.T, lockoutSvc api.LockoutService, twoFactorSvc api.TwoFactorService) (*fiber.App, *http.Cookie) {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	app.Use(sessions.Initialize(sessions.Config{Storage: store.NewMemoryStorage()}))

	userService := &stubUserService{user: &model.User{ID: 7, Email: "casey@example.com", Role: model.RoleUser}}
	handler := api.NewAuthHandler(userService, twoFactorSvc, nil, &stubRiskCollector{}, nil, lockoutSvc, &stubEventService{})
	app.Post("/auth/login/verify", handler.PostLoginVerify)
	app.Post("/park", func(ctx *fiber.Ctx) error {
		_, err := sessions.Reset(ctx, sessions.SessionData{
			IP:            "203.0.113.42",
			UserID:        7,
			Role:          model.RoleUser,
			LoginTime:     time.Now(),
			TwoFARequired: true,
			TwoFAMethod:   "totp",
		})
		return err
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/park", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "sid" {
			return app, cookie
		}
	}
	t.Fatal("no session cookie issued")
	return nil, nil
}

func postVerify(t *testing.T, app *fiber.App, cookie *http.Cookie) *http.Response {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/auth/login/verify", strings.NewReader(`{"code":"123456"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.AddCookie(cookie)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestLoginVerifyRejectedWhileLocked(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	twoFactor := &stubTwoFactorService{}
	app, cookie := newChallengeApp(t, &stubLockoutService{
		lockedErr: &lockout.AccountLockedError{Reason: lockout.ReasonAutoEscalation, Until: &until},
	}, twoFactor)

	resp := postVerify(t, app, cookie)
	assert.Equal(t, fiber.StatusLocked, resp.StatusCode)
	assert.False(t, twoFactor.verified)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Account temporarily restricted")
	assert.NotContains(t, string(body), lockout.ReasonAutoEscalation)
}

func TestLoginVerifyCompletesChallenge(t *testing.T) {
	twoFactor := &stubTwoFactorService{}
	app, cookie := newChallengeApp(t, &stubLockoutService{}, twoFactor)

	resp := postVerify(t, app, cookie)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, twoFactor.verified)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"ok"`)
}
