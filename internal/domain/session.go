package domain

import "time"

// RefreshSession is the server-side record backing one issued refresh token.
// A session is usable only while Revoked is false and ExpiresAt is in the
// future; rotation revokes the old row in the same transaction that inserts
// the replacement.
type RefreshSession struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	Token      string    `gorm:"size:1024;uniqueIndex;not null" json:"-"`
	ExpiresAt  time.Time `gorm:"index;not null" json:"expires_at"`
	Revoked    bool      `gorm:"index;not null;default:false" json:"revoked"`
	DeviceInfo string    `gorm:"size:512" json:"device_info"`
	IPAddress  string    `gorm:"size:64" json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *RefreshSession) Valid(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
