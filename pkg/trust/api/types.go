package api

import (
	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/device"
	"github.com/tendant/device-trust/pkg/identity"
	"github.com/tendant/device-trust/pkg/sessions"
)

// SignupRequest is the body of POST /auth/signup
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /auth/login. Device attributes the client
// leaves out are taken from the request headers.
type LoginRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	Browser           string `json:"browser"`
	OS                string `json:"os"`
	DeviceType        string `json:"deviceType"`
	ScreenResolution  string `json:"screenResolution"`
	Timezone          string `json:"timezone"`
	Language          string `json:"language"`
}

func (req LoginRequest) deviceInfo() device.Info {
	return device.Info{
		Browser:          req.Browser,
		OS:               req.OS,
		DeviceType:       req.DeviceType,
		ScreenResolution: req.ScreenResolution,
		Timezone:         req.Timezone,
		Language:         req.Language,
	}
}

type UserResponse struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Role       identity.Role `json:"role"`
	MaxDevices int           `json:"maxDevices"`
}

func userResponse(u identity.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		MaxDevices: u.MaxDevices,
	}
}

type SignupResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

type LoginResponse struct {
	Message         string           `json:"message"`
	Token           string           `json:"token"`
	User            UserResponse     `json:"user"`
	Session         sessions.Session `json:"session"`
	IsSuspicious    bool             `json:"isSuspicious"`
	SuspicionReason string           `json:"suspicionReason,omitempty"`
}

type MeResponse struct {
	User      UserResponse `json:"user"`
	SessionID uuid.UUID    `json:"sessionId"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// LogoutAllResponse reports how many sessions were ended
type LogoutAllResponse struct {
	Message  string `json:"message"`
	Sessions int    `json:"sessions"`
}

type UserStatusResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

type MaxDevicesRequest struct {
	MaxDevices int `json:"maxDevices"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}
