package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// replayWindow is the maximum age of a signed request. Older timestamps
// are rejected to blunt replay of captured payloads.
const replayWindow = 5 * time.Minute

var (
	// ErrMissingSignature means the request lacked the signature headers.
	ErrMissingSignature = errors.New("missing Slack signature headers")

	// ErrStaleTimestamp means the signed timestamp fell outside the
	// replay window.
	ErrStaleTimestamp = errors.New("request timestamp outside replay window")

	// ErrBadSignature means the computed signature did not match.
	ErrBadSignature = errors.New("signature mismatch")
)

// VerifySignature checks a request against Slack's v0 signing scheme:
// HMAC-SHA256 of "v0:<timestamp>:<body>" keyed with the signing secret,
// compared in constant time.
func VerifySignature(signingSecret, timestamp, signature string, body []byte, now time.Time) error {
	if timestamp == "" || signature == "" {
		return ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: unparseable timestamp %q", ErrMissingSignature, timestamp)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > replayWindow || age < -replayWindow {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
