package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"residentportal/internal/domain"
	"residentportal/internal/repository"
	"residentportal/internal/security"
	"residentportal/internal/zalo"
)

// RequestMeta carries the request attributes a session is bound to.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type UserInfo struct {
	ID        uint       `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Roles     []string   `json:"roles"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

type LoginResult struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	User        UserInfo `json:"user"`

	// RefreshToken travels only in the response cookie, never in the body.
	RefreshToken string `json:"-"`
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthService owns the session lifecycle: login, rotation, revocation and the
// Zalo create-on-first-use path.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.RefreshSessionRepository
	codec    *security.TokenCodec
	zalo     ZaloGateway
	logger   *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.RefreshSessionRepository,
	codec *security.TokenCodec,
	zaloGateway ZaloGateway,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{users: users, sessions: sessions, codec: codec, zalo: zaloGateway, logger: logger}
}

func (s *AuthService) Login(ctx context.Context, username, password string, meta RequestMeta) (*LoginResult, error) {
	user, err := s.users.FindByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Same rejection as a wrong password so handles cannot be probed.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !security.CheckPassword(*user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if user.Status != domain.StatusActive {
		return nil, statusError(user.Status)
	}

	s.touchLastLogin(ctx, user)
	return s.issueSession(ctx, user, meta)
}

func (s *AuthService) Refresh(ctx context.Context, oldToken string, meta RequestMeta) (*LoginResult, error) {
	stored, err := s.sessions.FindByToken(oldToken)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if stored.IPAddress != meta.IP {
		s.logger.WarnContext(ctx, "refresh token used from different ip, revoking",
			"user_id", stored.UserID, "issued_ip", stored.IPAddress, "request_ip", meta.IP)
		s.revoke(ctx, oldToken)
		return nil, ErrUnauthorizedLocation
	}

	if !stored.Valid(time.Now()) {
		// Defensive: also covers clock skew around the expiry check.
		s.revoke(ctx, oldToken)
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindByID(stored.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.revoke(ctx, oldToken)
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if user.Status != domain.StatusActive {
		s.revoke(ctx, oldToken)
		return nil, statusError(user.Status)
	}

	refreshToken, err := s.codec.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}
	next := s.newSession(user.ID, refreshToken, meta)
	if err := s.sessions.Rotate(oldToken, next); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			// Lost the rotation race; the value is already dead.
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	return s.buildResult(user, refreshToken)
}

// Logout revokes the named session. It is idempotent and never reveals
// whether the value existed.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeByToken(refreshToken)
}

func (s *AuthService) LogoutAll(ctx context.Context, username string) error {
	user, err := s.users.FindByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return s.sessions.RevokeAllForUser(user.ID)
}

// ZaloLogin exchanges a mini-app access token for portal credentials. A
// never-seen Zalo identity creates a PENDING_APPROVAL account and issues no
// credentials; repeats before approval find that account and re-signal
// pending without duplicating it.
func (s *AuthService) ZaloLogin(ctx context.Context, zaloAccessToken string, meta RequestMeta) (*LoginResult, error) {
	valid, err := s.zalo.ValidateAccessToken(ctx, zaloAccessToken)
	if err != nil {
		s.logger.ErrorContext(ctx, "zalo token validation failed", "error", err)
		return nil, errors.Join(ErrExternalService, err)
	}
	if !valid {
		return nil, ErrInvalidZaloToken
	}

	profile, err := s.zalo.UserProfile(ctx, zaloAccessToken)
	if err != nil {
		s.logger.ErrorContext(ctx, "zalo profile fetch failed", "error", err)
		return nil, errors.Join(ErrExternalService, err)
	}

	user, err := s.users.FindByZaloID(profile.ID)
	switch {
	case err == nil:
		if user.Status != domain.StatusActive {
			return nil, statusError(user.Status)
		}
		s.applyZaloProfile(user, profile.Name, profile.AvatarURL)
		now := time.Now()
		user.LastLogin = &now
		if err := s.users.Update(user); err != nil {
			return nil, err
		}
		return s.issueSession(ctx, user, meta)

	case errors.Is(err, repository.ErrUserNotFound):
		if err := s.createPendingZaloUser(ctx, profile); err != nil {
			return nil, err
		}
		return nil, ErrPendingApproval

	default:
		return nil, err
	}
}

func (s *AuthService) createPendingZaloUser(ctx context.Context, profile zalo.Profile) error {
	username, err := s.generateUniqueUsername(profile.ID)
	if err != nil {
		return err
	}
	// The account can never authenticate by password; the hash only keeps
	// the column non-empty.
	placeholder, err := security.HashPassword(uuid.NewString())
	if err != nil {
		return err
	}
	zaloID := profile.ID
	user := &domain.User{
		Username:     username,
		PasswordHash: &placeholder,
		FirstName:    extractFirstName(profile.Name),
		LastName:     extractLastName(profile.Name),
		ZaloID:       &zaloID,
		AvatarURL:    profile.AvatarURL,
		Status:       domain.StatusPendingApproval,
		Roles:        []domain.UserRole{{Role: domain.RoleUser}},
	}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			// Concurrent first login for the same identity; the pending
			// account already exists.
			return nil
		}
		return err
	}
	s.logger.InfoContext(ctx, "created pending zalo user", "user_id", user.ID, "username", username)
	return nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*LoginResult, error) {
	if taken, err := s.users.ExistsByUsername(in.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUserAlreadyExists
	}
	if taken, err := s.users.ExistsByEmail(in.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUserAlreadyExists
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	email := in.Email
	user := &domain.User{
		Username:     in.Username,
		Email:        &email,
		PasswordHash: &hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Status:       domain.StatusActive,
		Roles:        []domain.UserRole{{Role: domain.RoleUser}},
	}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}
	return s.issueSession(ctx, user, meta)
}

// ApproveUser transitions a pending account to ACTIVE.
func (s *AuthService) ApproveUser(ctx context.Context, userID uint) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.Status != domain.StatusPendingApproval {
		return &AccountStatusError{Status: user.Status}
	}
	return s.users.UpdateStatus(userID, domain.StatusActive)
}

// RejectUser marks a pending account INACTIVE and kills any sessions that
// might exist for it.
func (s *AuthService) RejectUser(ctx context.Context, userID uint) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.Status != domain.StatusPendingApproval {
		return &AccountStatusError{Status: user.Status}
	}
	if err := s.users.UpdateStatus(userID, domain.StatusInactive); err != nil {
		return err
	}
	return s.sessions.RevokeAllForUser(userID)
}

func (s *AuthService) PendingUsers(ctx context.Context) ([]UserInfo, error) {
	users, err := s.users.ListByStatus(domain.StatusPendingApproval)
	if err != nil {
		return nil, err
	}
	infos := make([]UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, buildUserInfo(&users[i]))
	}
	return infos, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*UserInfo, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	info := buildUserInfo(user)
	return &info, nil
}

func (s *AuthService) RefreshTTL() time.Duration { return s.codec.RefreshTTL() }

func (s *AuthService) issueSession(ctx context.Context, user *domain.User, meta RequestMeta) (*LoginResult, error) {
	var refreshToken string
	for attempt := 0; ; attempt++ {
		var err error
		refreshToken, err = s.codec.IssueRefreshToken(user)
		if err != nil {
			return nil, err
		}
		err = s.sessions.Create(s.newSession(user.ID, refreshToken, meta))
		if err == nil {
			break
		}
		// The jti makes collisions practically impossible; one reissue
		// covers the theoretical duplicate anyway.
		if errors.Is(err, repository.ErrDuplicateSession) && attempt == 0 {
			continue
		}
		return nil, err
	}
	return s.buildResult(user, refreshToken)
}

func (s *AuthService) buildResult(user *domain.User, refreshToken string) (*LoginResult, error) {
	accessToken, err := s.codec.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL() / time.Second),
		User:         buildUserInfo(user),
	}, nil
}

func (s *AuthService) newSession(userID uint, token string, meta RequestMeta) *domain.RefreshSession {
	return &domain.RefreshSession{
		UserID:     userID,
		Token:      token,
		ExpiresAt:  time.Now().Add(s.codec.RefreshTTL()),
		DeviceInfo: meta.UserAgent,
		IPAddress:  meta.IP,
	}
}

func (s *AuthService) touchLastLogin(ctx context.Context, user *domain.User) {
	now := time.Now()
	if err := s.users.UpdateLastLogin(user.ID, now); err != nil {
		// Best effort only; a failed timestamp must not fail the login.
		s.logger.WarnContext(ctx, "update last login failed", "user_id", user.ID, "error", err)
		return
	}
	user.LastLogin = &now
}

func (s *AuthService) revoke(ctx context.Context, token string) {
	if err := s.sessions.RevokeByToken(token); err != nil {
		s.logger.ErrorContext(ctx, "revoke session failed", "error", err)
	}
}

func (s *AuthService) applyZaloProfile(user *domain.User, name, avatarURL string) {
	if name != "" {
		user.FirstName = extractFirstName(name)
		user.LastName = extractLastName(name)
	}
	if avatarURL != "" {
		user.AvatarURL = avatarURL
	}
}

func (s *AuthService) generateUniqueUsername(zaloID string) (string, error) {
	base := "zalo_" + zaloID
	taken, err := s.users.ExistsByUsername(base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	return "zalo_" + uuid.NewString()[:8], nil
}

func buildUserInfo(user *domain.User) UserInfo {
	email := ""
	if user.Email != nil {
		email = *user.Email
	}
	return UserInfo{
		ID:        user.ID,
		Username:  user.Username,
		Email:     email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		AvatarURL: user.AvatarURL,
		Roles:     user.Authorities(),
		LastLogin: user.LastLogin,
	}
}

func extractFirstName(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func extractLastName(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], " ")
}
