package activitylog

import (
	"time"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/device"
	"github.com/tendant/device-trust/pkg/geo"
)

// Action is the kind of event an Entry records
type Action string

const (
	ActionLogin               Action = "login"
	ActionLogout              Action = "logout"
	ActionDeviceLimitExceeded Action = "device_limit_exceeded"
	ActionForceLogout         Action = "force_logout"
)

// DeviceAll is the device id recorded on force_logout entries
const DeviceAll = "all"

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	switch a {
	case ActionLogin, ActionLogout, ActionDeviceLimitExceeded, ActionForceLogout:
		return true
	}
	return false
}

// Entry is one immutable audit record. Login entries that carry coordinates
// also feed the impossible travel check.
type Entry struct {
	ID              uuid.UUID     `json:"id"`
	UserID          uuid.UUID     `json:"userId"`
	Action          Action        `json:"action"`
	DeviceID        string        `json:"deviceId"`
	DeviceInfo      device.Info   `json:"deviceInfo"`
	IPAddress       string        `json:"ipAddress"`
	Location        *geo.Location `json:"location,omitempty"`
	IsSuspicious    bool          `json:"isSuspicious"`
	SuspicionReason string        `json:"suspicionReason,omitempty"`
	Note            string        `json:"note,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

func (e Entry) reasonPtr() *string {
	if e.SuspicionReason == "" {
		return nil
	}
	r := e.SuspicionReason
	return &r
}
