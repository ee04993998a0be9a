package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials required for HMAC-authenticated requests
// against the Delta Exchange REST API.
type HMACAuth struct {
	Key    string // API key
	Secret string // API secret, used raw as the HMAC key
}

// DeltaHeaders returns the HTTP headers for a signed Delta Exchange request.
// The signature is HMAC-SHA256(secret, timestamp+METHOD+path+body) encoded as
// lower-case hex. path includes the query string, if any.
//
// Returned header keys:
//   - api-key
//   - timestamp
//   - signature
func (h *HMACAuth) DeltaHeaders(method, path, body string) map[string]string {
	return h.DeltaHeadersAt(method, path, body, time.Now().UnixMilli())
}

// DeltaHeadersAt is like DeltaHeaders but lets the caller supply the Unix
// millisecond timestamp (useful for deterministic testing).
func (h *HMACAuth) DeltaHeadersAt(method, path, body string, unixMilli int64) map[string]string {
	ts := strconv.FormatInt(unixMilli, 10)
	return map[string]string{
		"api-key":   h.Key,
		"timestamp": ts,
		"signature": Sign(h.Secret, ts, method, path, body),
	}
}

// Sign computes the Delta Exchange request signature.
func Sign(secret, timestamp, method, path, body string) string {
	message := timestamp + method + path + body
	return hmacSHA256Hex([]byte(secret), message)
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result hex-encoded.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
