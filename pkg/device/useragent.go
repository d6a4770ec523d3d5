package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent derives browser, OS and device type from a User-Agent header.
// Unrecognised parts are left empty so WithDefaults can fill them.
func ParseUserAgent(ua string) Info {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Info{}
	}

	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()

	os := parsed.OSInfo().Name
	if os == "" {
		os = parsed.OS()
	}

	return Info{
		Browser:    browser,
		OS:         os,
		DeviceType: deviceType(parsed, ua),
	}
}

func deviceType(parsed *useragent.UserAgent, raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "tablet"),
		strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return TypeTablet
	case parsed.Mobile():
		return TypeMobile
	default:
		return TypeDesktop
	}
}

// Merge returns i with empty attributes taken from other
func (i Info) Merge(other Info) Info {
	if i.Browser == "" {
		i.Browser = other.Browser
	}
	if i.OS == "" {
		i.OS = other.OS
	}
	if i.DeviceType == "" {
		i.DeviceType = other.DeviceType
	}
	if i.ScreenResolution == "" {
		i.ScreenResolution = other.ScreenResolution
	}
	if i.Timezone == "" {
		i.Timezone = other.Timezone
	}
	if i.Language == "" {
		i.Language = other.Language
	}
	return i
}
