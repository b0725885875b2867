package service

import (
	"errors"
	"fmt"
	"strings"

	"residentportal/internal/domain"
)

var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrPendingApproval      = errors.New("account is pending approval")
	ErrInvalidToken         = errors.New("refresh token is invalid, expired or revoked")
	ErrUnauthorizedLocation = errors.New("refresh token used from unauthorized location")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("username or email already exists")
	ErrInvalidZaloToken     = errors.New("zalo access token is invalid or expired")
	ErrExternalService      = errors.New("external identity provider unavailable")
)

// AccountStatusError rejects authentication for a non-usable account while
// keeping the status-specific reason available to the caller.
type AccountStatusError struct {
	Status domain.UserStatus
}

func (e *AccountStatusError) Error() string {
	return fmt.Sprintf("your account is %s, please contact support", strings.ToLower(string(e.Status)))
}

func statusError(status domain.UserStatus) error {
	if status == domain.StatusPendingApproval {
		return ErrPendingApproval
	}
	return &AccountStatusError{Status: status}
}
