package domain

import "time"

type UserStatus string

const (
	StatusActive          UserStatus = "ACTIVE"
	StatusLocked          UserStatus = "LOCKED"
	StatusInactive        UserStatus = "INACTIVE"
	StatusPendingApproval UserStatus = "PENDING_APPROVAL"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:128;uniqueIndex;not null" json:"username"`
	Email        *string    `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	PasswordHash *string    `gorm:"size:128" json:"-"`
	FirstName    string     `gorm:"size:255" json:"first_name"`
	LastName     string     `gorm:"size:255" json:"last_name"`
	ZaloID       *string    `gorm:"size:64;uniqueIndex" json:"-"`
	AvatarURL    string     `gorm:"size:512" json:"avatar_url,omitempty"`
	PhoneNumber  string     `gorm:"size:32" json:"phone_number,omitempty"`
	Status       UserStatus `gorm:"size:32;index;not null;default:ACTIVE" json:"status"`
	Roles        []UserRole `gorm:"foreignKey:UserID" json:"roles"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

type UserRole struct {
	ID     uint   `gorm:"primaryKey" json:"-"`
	UserID uint   `gorm:"index:idx_user_role,unique;not null" json:"-"`
	Role   string `gorm:"size:64;index:idx_user_role,unique;not null" json:"role"`
}

// RoleNames returns the role set in declaration order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Role)
	}
	return names
}

// Authorities returns the ROLE_-prefixed form embedded in access tokens.
func (u *User) Authorities() []string {
	auths := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		auths = append(auths, "ROLE_"+r.Role)
	}
	return auths
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r.Role == role {
			return true
		}
	}
	return false
}
