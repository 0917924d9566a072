package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names sent with every request to the remote signer.
const (
	HeaderKeyID     = "X-Shuttle-Key"
	HeaderTimestamp = "X-Shuttle-Timestamp"
	HeaderSignature = "X-Shuttle-Signature"
)

// HMACAuth holds the credentials used to authenticate to the remote signer.
type HMACAuth struct {
	KeyID  string
	Secret []byte
}

// Headers returns the authentication headers for a request. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderKeyID:     h.KeyID,
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64(h.Secret, ts+method+path+body),
	}
}

// Verify checks a signature produced by Headers. maxSkew bounds how far the
// timestamp may be from now.
func (h *HMACAuth) Verify(method, path, body, ts, signature string, maxSkew time.Duration) bool {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if skew := time.Since(time.Unix(unix, 0)); skew > maxSkew || skew < -maxSkew {
		return false
	}
	want := hmacSHA256Base64(h.Secret, ts+method+path+body)
	return hmac.Equal([]byte(want), []byte(signature))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	key := "****"
	if len(h.KeyID) > 4 {
		key = h.KeyID[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=****}", key)
}
