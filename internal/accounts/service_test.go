package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/matchguard/matchguard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepo struct {
	users  map[uint]*model.User
	nextID uint
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uint]*model.User{}, nextID: 1}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, userID uint) (*model.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return ErrEmailRegistered
		}
	}
	user.ID = r.nextID
	r.nextID++
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Updates(ctx context.Context, userID uint, columns map[string]interface{}) (int64, error) {
	user, ok := r.users[userID]
	if !ok {
		return 0, nil
	}
	for col, val := range columns {
		switch col {
		case "password":
			user.Password = val.(string)
		case "delete_requested_at":
			if val == nil {
				user.DeleteRequestedAt = nil
			} else {
				t := val.(time.Time)
				user.DeleteRequestedAt = &t
			}
		}
	}
	return 1, nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, userID uint) error {
	delete(r.users, userID)
	return nil
}

type fakeQuestionRepo struct {
	questions map[uint][]*model.SecurityQuestion
}

func (r *fakeQuestionRepo) ListByUser(ctx context.Context, userID uint) ([]*model.SecurityQuestion, error) {
	return r.questions[userID], nil
}

func (r *fakeQuestionRepo) Replace(ctx context.Context, userID uint, questions []*model.SecurityQuestion) error {
	r.questions[userID] = questions
	return nil
}

func newTestService() (*Service, *fakeUserRepo) {
	userRepo := newFakeUserRepo()
	questionRepo := &fakeQuestionRepo{questions: map[uint][]*model.SecurityQuestion{}}
	return NewService(userRepo, questionRepo, "test-master-key"), userRepo
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// wrong password and unknown account yield the same error
	_, err = svc.Authenticate(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateDisabled(t *testing.T) {
	svc, userRepo := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "bob@example.com", "hunter22")
	require.NoError(t, err)
	userRepo.users[user.ID].Disabled = true

	_, err = svc.Authenticate(ctx, "bob@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "carol@example.com", "oldpass1")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrongpass", "newpass1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "oldpass1", "newpass1"))
	_, err = svc.Authenticate(ctx, "carol@example.com", "newpass1")
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "carol@example.com", "oldpass1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNormalizeAnswer(t *testing.T) {
	assert.Equal(t, "fluffy the cat", NormalizeAnswer("  Fluffy   THE cat "))
	assert.Equal(t, "paris", NormalizeAnswer("Paris"))
}

func TestSecurityQuestions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "dave@example.com", "hunter22")
	require.NoError(t, err)

	err = svc.SetSecurityQuestions(ctx, user.ID, []QuestionAnswer{
		{Question: "first pet", Answer: "Fluffy"},
		{Question: "birth city", Answer: "Paris"},
	})
	assert.ErrorIs(t, err, ErrNotEnoughQuestions)

	pairs := []QuestionAnswer{
		{Question: "first pet", Answer: "Fluffy"},
		{Question: "birth city", Answer: "Paris"},
		{Question: "favorite food", Answer: "  Pad   Thai "},
	}
	require.NoError(t, svc.SetSecurityQuestions(ctx, user.ID, pairs))

	// normalization makes sloppy but honest answers pass
	correct, err := svc.VerifySecurityQuestions(ctx, user.ID, map[string]string{
		"first pet":     "fluffy",
		"birth city":    "PARIS ",
		"favorite food": "pad thai",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, correct)

	correct, err = svc.VerifySecurityQuestions(ctx, user.ID, map[string]string{
		"first pet":     "fluffy",
		"birth city":    "london",
		"favorite food": "pad thai",
	})
	assert.ErrorIs(t, err, ErrQuestionVerifyFail)
	assert.Equal(t, 2, correct)
}

func TestRequestDeletion(t *testing.T) {
	svc, userRepo := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "erin@example.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.RequestDeletion(ctx, user.ID, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	purgeAt, err := svc.RequestDeletion(ctx, user.ID, "hunter22")
	require.NoError(t, err)
	assert.True(t, purgeAt.After(time.Now()))
	assert.NotNil(t, userRepo.users[user.ID].DeleteRequestedAt)

	_, err = svc.RequestDeletion(ctx, user.ID, "hunter22")
	assert.ErrorIs(t, err, ErrDeletePending)

	require.NoError(t, svc.CancelDeletion(ctx, user.ID))
	assert.Nil(t, userRepo.users[user.ID].DeleteRequestedAt)
}

func TestExportToken(t *testing.T) {
	svc, _ := newTestService()

	token, expiresAt, err := svc.IssueExportToken(42)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	userID, err := svc.VerifyExportToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), userID)

	_, err = svc.VerifyExportToken(token + "tampered")
	assert.ErrorIs(t, err, ErrInvalidExportToken)

	other := NewService(nil, nil, "another-key")
	_, err = other.VerifyExportToken(token)
	assert.ErrorIs(t, err, ErrInvalidExportToken)
}

func TestRegisterStoresHashedPassword(t *testing.T) {
	svc, userRepo := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "Frank@Example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "frank@example.com", user.Email)

	stored := userRepo.users[user.ID]
	assert.NotEqual(t, "hunter22", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("hunter22")))
}
