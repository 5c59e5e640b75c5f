package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const maskToken = "****"

// Detail keys whose values are personal data. The sink masks them before
// an event is stored or logged.
const (
	KeyEmail     = "email"
	KeyIPAddress = "ip_address"
	KeyEmailHash = "email_hash"
)

// HashSensitive returns a short stable digest of value, usable to correlate
// events without storing the value itself.
func HashSensitive(value string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(sum[:])[:16]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return maskToken
	}
	return email[:1] + maskToken + email[at:]
}

// MaskIP drops the host part of an IPv4 or IPv6 address.
func MaskIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	if i := strings.LastIndexAny(ip, ".:"); i > 0 {
		return ip[:i+1] + maskToken
	}
	return maskToken
}

// MaskDetails returns a copy of details with personal data masked. A masked
// email is accompanied by its hash under KeyEmailHash.
func MaskDetails(details map[string]any) map[string]any {
	if len(details) == 0 {
		return details
	}
	out := make(map[string]any, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	if email, ok := details[KeyEmail].(string); ok && email != "" {
		out[KeyEmail] = MaskEmail(email)
		out[KeyEmailHash] = HashSensitive(email)
	}
	if ip, ok := details[KeyIPAddress].(string); ok {
		out[KeyIPAddress] = MaskIP(ip)
	}
	return out
}
