package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the L2 API credentials returned by the CLOB's
// derive-api-key endpoint.
type HMACAuth struct {
	Key        string
	Secret     string // URL-safe base64
	Passphrase string
}

// L2Headers returns the authentication headers for a CLOB request at the
// current time.
func (h *HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	return h.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt signs timestamp+method+path+body with the decoded secret and
// returns the POLY_* headers.
func (h *HMACAuth) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  sign(decodeSecret(h.Secret), ts+method+path+body),
	}
}

// decodeSecret accepts URL-safe or standard base64 and falls back to the raw
// bytes so a malformed secret yields a rejected request, not a panic.
func decodeSecret(secret string) []byte {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(secret); err == nil {
			return b
		}
	}
	return []byte(secret)
}

func sign(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
