package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is how far a signed timestamp may drift from now
// before the signature is rejected as a possible replay.
const DefaultTolerance = 5 * time.Minute

// Signature errors. Handlers map all of them to a 400; the split
// exists for logs and tests.
var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrBadSignature     = errors.New("signature mismatch")
	ErrStaleTimestamp   = errors.New("signed timestamp outside tolerance")
)

// signatureHeader is a parsed "t=<unix>,v1=<hex>[,v1=<hex>...]" value.
// Multiple v1 candidates appear during secret rotation; any one
// matching accepts the payload.
type signatureHeader struct {
	timestamp  int64
	signatures [][]byte
}

func parseSignatureHeader(header string) (signatureHeader, error) {
	if header == "" {
		return signatureHeader{}, ErrMissingSignature
	}

	var parsed signatureHeader
	sawTimestamp := false
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return signatureHeader{}, fmt.Errorf("malformed signature timestamp: %w", err)
			}
			parsed.timestamp = ts
			sawTimestamp = true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				return signatureHeader{}, fmt.Errorf("malformed v1 signature: %w", err)
			}
			parsed.signatures = append(parsed.signatures, sig)
		}
		// Other schemes (v0 test signatures) are ignored.
	}

	if !sawTimestamp {
		return signatureHeader{}, errors.New("signature header missing timestamp")
	}
	if len(parsed.signatures) == 0 {
		return signatureHeader{}, errors.New("signature header missing v1 signature")
	}
	return parsed, nil
}

// VerifySignature checks a webhook body against its signature header.
//
// The signed payload is "<t>.<body>"; the expected MAC is HMAC-SHA256
// under secret. Comparison is constant time. tolerance <= 0 uses
// DefaultTolerance; now is injectable for tests.
func VerifySignature(body []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	parsed, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	signed := time.Unix(parsed.timestamp, 0)
	drift := now.Sub(signed)
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return fmt.Errorf("%w: signed %s, now %s",
			ErrStaleTimestamp, signed.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", parsed.timestamp)
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range parsed.signatures {
		if hmac.Equal(candidate, expected) {
			return nil
		}
	}
	return ErrBadSignature
}

// SignPayload produces a signature header for a body, used by tests
// and the outbound reconciler's request signing.
func SignPayload(body []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
