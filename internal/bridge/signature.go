package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"
)

// Signature headers set on forwarded calls when a signing secret is
// configured. The library recomputes the MAC to trust HeaderUserID.
const (
	HeaderTimestamp = "X-Sheetsmith-Timestamp"
	HeaderSignature = "X-Sheetsmith-Signature"
)

// DefaultReplayWindow bounds the clock skew VerifySignature accepts.
const DefaultReplayWindow = 5 * time.Minute

var (
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{userID}.{body}".
func Sign(secret string, timestamp int64, userID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write([]byte(userID))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by Sign, rejecting timestamps
// further than window from now.
func VerifySignature(secret, signature string, timestamp int64, userID string, body []byte, window time.Duration, now time.Time) error {
	skew := now.Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(window/time.Second) {
		return ErrReplayWindowExceeded
	}
	expected := Sign(secret, timestamp, userID, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

var (
	ErrInvalidURL    = errors.New("invalid library URL")
	ErrInvalidScheme = errors.New("library URL must use https")
	ErrEmptyHost     = errors.New("library URL must have a host")
)

// ValidateBaseURL checks the configured library URL. An empty URL is valid
// and leaves the bridge unconfigured. Plain http is only accepted when
// allowHTTP is set.
func ValidateBaseURL(raw string, allowHTTP bool) error {
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	switch parsed.Scheme {
	case "https":
	case "http":
		if !allowHTTP {
			return ErrInvalidScheme
		}
	default:
		return ErrInvalidScheme
	}
	if parsed.Hostname() == "" {
		return ErrEmptyHost
	}
	return nil
}
