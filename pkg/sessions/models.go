package sessions

import (
	"time"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/device"
	"github.com/tendant/device-trust/pkg/geo"
)

// Session binds a user to one fingerprinted device.
// It is live while IsActive is set and ExpiresAt is after now.
type Session struct {
	ID           uuid.UUID     `json:"id"`
	UserID       uuid.UUID     `json:"userId"`
	DeviceID     string        `json:"deviceId"`
	DeviceInfo   device.Info   `json:"deviceInfo"`
	SessionToken string        `json:"-"`
	IPAddress    string        `json:"ipAddress"`
	Location     *geo.Location `json:"location,omitempty"`
	IsActive     bool          `json:"isActive"`
	LastActivity time.Time     `json:"lastActivity"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// IsLive reports whether the session still authenticates its holder at now
func (s Session) IsLive(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

// Nickname is the device label shown to users
func (s Session) Nickname() string {
	return device.Nickname(s.DeviceInfo)
}
