package accounts

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/matchguard/matchguard/model"
	"github.com/matchguard/matchguard/params"
	"golang.org/x/crypto/bcrypt"
)

// QuestionAnswer pairs a question with its plaintext answer, used both for
// setup and for unlock verification.
type QuestionAnswer struct {
	Question string `json:"question" validate:"required,max=256"`
	Answer   string `json:"answer" validate:"required,max=256"`
}

type Service struct {
	userRepo     UserRepository
	questionRepo QuestionRepository
	masterKey    string
}

func (s *Service) GetUser(ctx context.Context, userID uint) (*model.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.userRepo.GetByEmail(ctx, strings.ToLower(email))
}

// Authenticate verifies email and password. It deliberately returns the
// same error for unknown accounts and wrong passwords so callers cannot
// probe for account existence.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err == ErrUserNotFound {
		// burn a comparison anyway to keep timing flat
		bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvalidinval"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, err
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Email:    strings.ToLower(email),
		Password: string(passwordHash),
		Role:     model.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword requires the current password before accepting a new one.
func (s *Service) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(currentPassword)) != nil {
		return ErrInvalidCredentials
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.userRepo.Updates(ctx, userID, map[string]interface{}{"password": string(passwordHash)})
	return err
}

// VerifyPassword re-checks the current password for sensitive mutations.
func (s *Service) VerifyPassword(ctx context.Context, userID uint, password string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// NormalizeAnswer canonicalizes a security question answer before hashing
// or comparing: lowercase, trimmed, inner whitespace collapsed.
func NormalizeAnswer(answer string) string {
	return strings.Join(strings.Fields(strings.ToLower(answer)), " ")
}

// SetSecurityQuestions replaces the user's question set. Answers are
// stored only as salted hashes of the normalized answer.
func (s *Service) SetSecurityQuestions(ctx context.Context, userID uint, pairs []QuestionAnswer) error {
	if len(pairs) < params.SecurityQuestionMinRequired {
		return ErrNotEnoughQuestions
	}
	rows := make([]*model.SecurityQuestion, 0, len(pairs))
	for _, pair := range pairs {
		hash, err := bcrypt.GenerateFromPassword([]byte(NormalizeAnswer(pair.Answer)), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		rows = append(rows, &model.SecurityQuestion{
			UserID:     userID,
			Question:   pair.Question,
			AnswerHash: string(hash),
		})
	}
	return s.questionRepo.Replace(ctx, userID, rows)
}

// VerifySecurityQuestions checks submitted answers against the stored
// hashes and reports how many matched. Verification passes when at least
// SecurityQuestionMinCorrect answers are right.
func (s *Service) VerifySecurityQuestions(ctx context.Context, userID uint, answers map[string]string) (int, error) {
	questions, err := s.questionRepo.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(questions) < params.SecurityQuestionMinRequired {
		return 0, ErrNotEnoughQuestions
	}

	correct := 0
	for _, q := range questions {
		answer, ok := answers[q.Question]
		if !ok {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(q.AnswerHash), []byte(NormalizeAnswer(answer))) == nil {
			correct++
		}
	}
	if correct < params.SecurityQuestionMinCorrect {
		return correct, ErrQuestionVerifyFail
	}
	return correct, nil
}

func (s *Service) ListSecurityQuestions(ctx context.Context, userID uint) ([]string, error) {
	questions, err := s.questionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(questions))
	for i, q := range questions {
		out[i] = q.Question
	}
	return out, nil
}

// RequestDeletion starts the soft-delete grace period. The account keeps
// working until the period ends; requesting twice is rejected.
func (s *Service) RequestDeletion(ctx context.Context, userID uint, currentPassword string) (time.Time, error) {
	if err := s.VerifyPassword(ctx, userID, currentPassword); err != nil {
		return time.Time{}, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if user.DeleteRequestedAt != nil {
		return time.Time{}, ErrDeletePending
	}
	now := time.Now()
	if _, err := s.userRepo.Updates(ctx, userID, map[string]interface{}{"delete_requested_at": now}); err != nil {
		return time.Time{}, err
	}
	return now.Add(params.AccountDeleteGracePeriod), nil
}

// CancelDeletion aborts a pending deletion within the grace period.
func (s *Service) CancelDeletion(ctx context.Context, userID uint) error {
	_, err := s.userRepo.Updates(ctx, userID, map[string]interface{}{"delete_requested_at": nil})
	return err
}

type exportClaims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

// IssueExportToken signs a short-lived token that authorizes downloading
// the user's data export.
func (s *Service) IssueExportToken(userID uint) (string, time.Time, error) {
	expiresAt := time.Now().Add(params.ExportTokenTTL)
	claims := exportClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "data-export",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.masterKey))
	return token, expiresAt, err
}

// VerifyExportToken validates an export token and returns the user it was
// issued for.
func (s *Service) VerifyExportToken(tokenString string) (uint, error) {
	var claims exportClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidExportToken
		}
		return []byte(s.masterKey), nil
	})
	if err != nil || !token.Valid || claims.Subject != "data-export" {
		return 0, ErrInvalidExportToken
	}
	return claims.UserID, nil
}

func NewService(userRepo UserRepository, questionRepo QuestionRepository, masterKey string) *Service {
	return &Service{
		userRepo:     userRepo,
		questionRepo: questionRepo,
		masterKey:    masterKey,
	}
}
