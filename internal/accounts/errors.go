package accounts

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailRegistered    = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrNotEnoughQuestions = errors.New("not enough security questions configured")
	ErrQuestionVerifyFail = errors.New("security question verification failed")
	ErrDeletePending      = errors.New("account deletion already requested")
	ErrInvalidExportToken = errors.New("invalid export token")
	ErrPolicyViolation    = errors.New("security policy violation")
)
