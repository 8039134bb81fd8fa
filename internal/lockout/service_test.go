package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/risk"
	"github.com/matchguard/matchguard/internal/store"
	"github.com/matchguard/matchguard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLockRepo struct {
	locks  []*model.AccountLock
	nextID uint
}

func (r *fakeLockRepo) GetActive(ctx context.Context, userID uint) (*model.AccountLock, error) {
	for i := len(r.locks) - 1; i >= 0; i-- {
		if r.locks[i].UserID == userID && r.locks[i].IsLocked {
			cp := *r.locks[i]
			return &cp, nil
		}
	}
	return nil, ErrNotLocked
}

func (r *fakeLockRepo) Create(ctx context.Context, lock *model.AccountLock) error {
	if lock.IsLocked {
		for _, existing := range r.locks {
			if existing.UserID == lock.UserID && existing.IsLocked {
				existing.IsLocked = false
			}
		}
	}
	r.nextID++
	lock.ID = r.nextID
	cp := *lock
	r.locks = append(r.locks, &cp)
	return nil
}

func (r *fakeLockRepo) Release(ctx context.Context, userID uint) (int64, error) {
	var affected int64
	for _, lock := range r.locks {
		if lock.UserID == userID && lock.IsLocked {
			lock.IsLocked = false
			affected++
		}
	}
	return affected, nil
}

func (r *fakeLockRepo) History(ctx context.Context, userID uint, limit int) ([]*model.AccountLock, error) {
	var out []*model.AccountLock
	for i := len(r.locks) - 1; i >= 0 && len(out) < limit; i-- {
		if r.locks[i].UserID == userID {
			out = append(out, r.locks[i])
		}
	}
	return out, nil
}

type fakeQuestions struct {
	pass bool
}

func (q *fakeQuestions) VerifySecurityQuestions(ctx context.Context, userID uint, answers map[string]string) (int, error) {
	if !q.pass {
		return 1, errVerifyFail
	}
	return 3, nil
}

var errVerifyFail = &verifyFailError{}

type verifyFailError struct{}

func (*verifyFailError) Error() string { return "security question verification failed" }

type fakeRecorder struct {
	recorded []events.Event
}

func (r *fakeRecorder) Record(ctx context.Context, event events.Event) (uint64, error) {
	r.recorded = append(r.recorded, event)
	return uint64(len(r.recorded)), nil
}

func newTestLockout() (*Service, *fakeLockRepo, *fakeQuestions, *fakeRecorder) {
	repo := &fakeLockRepo{}
	questions := &fakeQuestions{pass: true}
	recorder := &fakeRecorder{}
	svc := NewService(repo, store.NewMemoryStorage(), questions, recorder, DefaultLockPolicy())
	return svc, repo, questions, recorder
}

func TestLockAndCheck(t *testing.T) {
	svc, _, _, recorder := newTestLockout()
	ctx := context.Background()

	require.NoError(t, svc.CheckLocked(ctx, 1))

	require.NoError(t, svc.Lock(ctx, 1, "manual_review", 30*time.Minute, "203.0.113.42"))
	err := svc.CheckLocked(ctx, 1)
	var lockedErr *AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Equal(t, "manual_review", lockedErr.Reason)
	require.NotNil(t, lockedErr.Until)

	assert.ErrorIs(t, svc.Lock(ctx, 1, "again", 0, "203.0.113.42"), ErrAlreadyLocked)

	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, events.TypeAccountLocked, recorder.recorded[0].Type)
	assert.Equal(t, events.SeverityHigh, recorder.recorded[0].Severity)
}

func TestExpiredLockDoesNotBlock(t *testing.T) {
	svc, repo, _, _ := newTestLockout()
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	repo.Create(ctx, &model.AccountLock{
		UserID:   2,
		Reason:   "manual_review",
		IsLocked: true,
		LockedAt: past.Add(-30 * time.Minute),
		UnlockAt: &past,
	})
	assert.NoError(t, svc.CheckLocked(ctx, 2))
}

func TestFlagDoesNotBlock(t *testing.T) {
	svc, _, _, recorder := newTestLockout()
	ctx := context.Background()

	require.NoError(t, svc.Flag(ctx, 3, "fraud_report", "203.0.113.42"))
	assert.NoError(t, svc.CheckLocked(ctx, 3))

	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, events.TypeAccountFlagged, recorder.recorded[0].Type)
}

func TestFlagKeepsExistingLock(t *testing.T) {
	svc, repo, _, _ := newTestLockout()
	ctx := context.Background()

	require.NoError(t, svc.Lock(ctx, 3, "manual_review", 30*time.Minute, "203.0.113.42"))
	require.NoError(t, svc.Flag(ctx, 3, "fraud_report", "203.0.113.42"))

	err := svc.CheckLocked(ctx, 3)
	var lockedErr *AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Equal(t, "manual_review", lockedErr.Reason)

	history, err := repo.History(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestUnlock(t *testing.T) {
	svc, _, _, recorder := newTestLockout()
	ctx := context.Background()

	assert.ErrorIs(t, svc.Unlock(ctx, 4, "admin", "203.0.113.42"), ErrNotLocked)

	require.NoError(t, svc.Lock(ctx, 4, "manual_review", 0, "203.0.113.42"))
	require.NoError(t, svc.Unlock(ctx, 4, "admin", "203.0.113.42"))
	assert.NoError(t, svc.CheckLocked(ctx, 4))

	last := recorder.recorded[len(recorder.recorded)-1]
	assert.Equal(t, events.TypeAccountUnlocked, last.Type)
}

func TestEscalationAutoLock(t *testing.T) {
	svc, _, _, recorder := newTestLockout()
	ctx := context.Background()

	// allow decisions never move the counter
	for i := 0; i < 10; i++ {
		require.NoError(t, svc.RegisterDecision(ctx, 5, risk.DecisionAllow, "203.0.113.42"))
	}
	assert.NoError(t, svc.CheckLocked(ctx, 5))

	// four challenges leave the account usable
	for i := 0; i < 4; i++ {
		require.NoError(t, svc.RegisterDecision(ctx, 5, risk.DecisionChallenge, "203.0.113.42"))
	}
	assert.NoError(t, svc.CheckLocked(ctx, 5))

	// the fifth trips the automatic lock
	require.NoError(t, svc.RegisterDecision(ctx, 5, risk.DecisionBlock, "203.0.113.42"))
	err := svc.CheckLocked(ctx, 5)
	var lockedErr *AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Equal(t, ReasonAutoEscalation, lockedErr.Reason)

	last := recorder.recorded[len(recorder.recorded)-1]
	assert.Equal(t, events.TypeAccountLocked, last.Type)
	assert.Equal(t, events.SeverityCritical, last.Severity)

	// further decisions while locked do not error
	require.NoError(t, svc.RegisterDecision(ctx, 5, risk.DecisionBlock, "203.0.113.42"))
}

func TestUnlockWithQuestions(t *testing.T) {
	svc, _, questions, recorder := newTestLockout()
	ctx := context.Background()

	assert.ErrorIs(t, svc.UnlockWithQuestions(ctx, 6, nil, "203.0.113.42"), ErrNotLocked)

	require.NoError(t, svc.Lock(ctx, 6, "manual_review", 0, "203.0.113.42"))

	questions.pass = false
	err := svc.UnlockWithQuestions(ctx, 6, map[string]string{"first pet": "wrong"}, "203.0.113.42")
	assert.ErrorIs(t, err, errVerifyFail)
	found := false
	for _, event := range recorder.recorded {
		if event.Type == events.TypeQuestionVerifyFailed {
			found = true
		}
	}
	assert.True(t, found)

	questions.pass = true
	require.NoError(t, svc.UnlockWithQuestions(ctx, 6, map[string]string{"first pet": "fluffy"}, "203.0.113.42"))
	assert.NoError(t, svc.CheckLocked(ctx, 6))
}

func TestUnlockWithQuestionsRateLimit(t *testing.T) {
	svc, _, questions, _ := newTestLockout()
	ctx := context.Background()
	questions.pass = false

	require.NoError(t, svc.Lock(ctx, 7, "manual_review", 0, "203.0.113.42"))

	for i := 0; i < 5; i++ {
		err := svc.UnlockWithQuestions(ctx, 7, map[string]string{"q": "wrong"}, "203.0.113.42")
		assert.ErrorIs(t, err, errVerifyFail)
	}
	questions.pass = true
	err := svc.UnlockWithQuestions(ctx, 7, map[string]string{"q": "right"}, "203.0.113.42")
	assert.ErrorIs(t, err, ErrTooManyUnlockAttempts)
}
