// Package device derives stable device identifiers from client-reported attributes.
//
// A device id is a one-way hash of an opaque client fingerprint token and the
// device attributes. The same token and attributes always give the same id; it
// is a lookup key, not proof against spoofing.
//
// # Basic Usage
//
//	info := device.InfoFromRequest(r, device.Info{Browser: body.Browser, OS: body.OS})
//	id, err := device.Fingerprint(device.FingerprintToken(r, body.DeviceFingerprint), info)
//	if err != nil {
//		// VALIDATION_FAILED: the client sent no fingerprint token
//	}
//
// Attributes the client leaves empty are defaulted before hashing
// (Unknown, Desktop, en), so an omitted attribute and its default produce the
// same id.
//
// # User Agent
//
// ParseUserAgent fills browser, OS and device type from the User-Agent
// header using github.com/mssola/useragent:
//
//	info := device.ParseUserAgent(r.UserAgent())
//	label := device.Nickname(info) // "Chrome on Windows"
package device
