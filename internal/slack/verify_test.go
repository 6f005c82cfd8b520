package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

func signBody(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	const secret = "8f742231b10e8888abcd99yyyzzz85a5"
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"type":"event_callback"}`)
	freshTS := strconv.FormatInt(now.Unix(), 10)

	tests := []struct {
		name      string
		timestamp string
		signature string
		wantErr   error
	}{
		{
			name:      "valid signature",
			timestamp: freshTS,
			signature: signBody(secret, freshTS, body),
			wantErr:   nil,
		},
		{
			name:      "missing signature",
			timestamp: freshTS,
			signature: "",
			wantErr:   ErrMissingSignature,
		},
		{
			name:      "missing timestamp",
			timestamp: "",
			signature: signBody(secret, freshTS, body),
			wantErr:   ErrMissingSignature,
		},
		{
			name:      "garbage timestamp",
			timestamp: "not-a-number",
			signature: signBody(secret, "not-a-number", body),
			wantErr:   ErrMissingSignature,
		},
		{
			name:      "stale timestamp",
			timestamp: strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10),
			signature: signBody(secret, strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10), body),
			wantErr:   ErrStaleTimestamp,
		},
		{
			name:      "future timestamp",
			timestamp: strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10),
			signature: signBody(secret, strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10), body),
			wantErr:   ErrStaleTimestamp,
		},
		{
			name:      "wrong secret",
			timestamp: freshTS,
			signature: signBody("other-secret", freshTS, body),
			wantErr:   ErrBadSignature,
		},
		{
			name:      "tampered signature",
			timestamp: freshTS,
			signature: "v0=deadbeef",
			wantErr:   ErrBadSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(secret, tt.timestamp, tt.signature, body, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifySignature() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifySignature_BodyTamper(t *testing.T) {
	const secret = "secret"
	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := signBody(secret, ts, []byte("original body"))

	err := VerifySignature(secret, ts, sig, []byte("tampered body"), now)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("VerifySignature() with tampered body = %v, want ErrBadSignature", err)
	}
}
