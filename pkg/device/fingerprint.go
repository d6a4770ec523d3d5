package device

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	pkgerrors "github.com/tendant/device-trust/pkg/errors"
)

// Defaults substituted for attributes the client did not send
const (
	Unknown         = "Unknown"
	DefaultLanguage = "en"
)

// Device types
const (
	TypeDesktop = "Desktop"
	TypeMobile  = "Mobile"
	TypeTablet  = "Tablet"
)

// Info contains the client-reported attributes of a device.
// Field order is part of the fingerprint encoding.
type Info struct {
	Browser          string `json:"browser"`
	OS               string `json:"os"`
	DeviceType       string `json:"deviceType"`
	ScreenResolution string `json:"screenResolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
}

// WithDefaults returns a copy of i with empty attributes replaced by their defaults
func (i Info) WithDefaults() Info {
	out := Info{
		Browser:          strings.TrimSpace(i.Browser),
		OS:               strings.TrimSpace(i.OS),
		DeviceType:       strings.TrimSpace(i.DeviceType),
		ScreenResolution: strings.TrimSpace(i.ScreenResolution),
		Timezone:         strings.TrimSpace(i.Timezone),
		Language:         strings.TrimSpace(i.Language),
	}
	if out.Browser == "" {
		out.Browser = Unknown
	}
	if out.OS == "" {
		out.OS = Unknown
	}
	if out.DeviceType == "" {
		out.DeviceType = TypeDesktop
	}
	if out.ScreenResolution == "" {
		out.ScreenResolution = Unknown
	}
	if out.Timezone == "" {
		out.Timezone = Unknown
	}
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	return out
}

// Fingerprint derives the device id from the client fingerprint token and the
// device attributes. It is the hex SHA-256 of the token followed by the JSON
// encoding of the defaulted attributes.
func Fingerprint(token string, info Info) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", pkgerrors.ValidationFailed("deviceFingerprint", "device fingerprint missing")
	}

	canonical, err := json.Marshal(info.WithDefaults())
	if err != nil {
		return "", pkgerrors.InternalWrap(err, "failed to encode device info")
	}

	h := sha256.New()
	h.Write([]byte(token))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Nickname is the human label shown in session lists
func Nickname(info Info) string {
	d := info.WithDefaults()
	return d.Browser + " on " + d.OS
}
