// Package signature implements the inbound webhook HMAC verification
// described in spec.md §4.1.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
)

// MinSecretBytes is the minimum accepted HMAC secret length. Organizations
// configured with a shorter secret must be rejected at startup.
const MinSecretBytes = 32

// ValidateSecret enforces MinSecretBytes, with no fallback to unsigned
// acceptance.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretBytes {
		return apperr.New(apperr.Internal, "hmac secret shorter than 32 bytes")
	}
	return nil
}

// Verify checks header against the HMAC-SHA256 of "<t>.<body>" using secret,
// enforcing a bounded clock skew against now. The comparison is constant
// time. header has the form "t=<unix_seconds>,v0=<hex_hmac_sha256>".
func Verify(body []byte, header string, secret []byte, now time.Time, skew time.Duration) error {
	if strings.TrimSpace(header) == "" {
		return apperr.New(apperr.SignatureMissing, "webhook-signature header missing")
	}

	ts, sig, ok := parseHeader(header)
	if !ok {
		return apperr.New(apperr.SignatureMalformed, "webhook-signature header malformed")
	}

	tsSeconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return apperr.New(apperr.SignatureMalformed, "webhook-signature timestamp malformed")
	}

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return apperr.New(apperr.SignatureMalformed, "webhook-signature digest malformed")
	}

	signedAt := time.Unix(tsSeconds, 0)
	delta := now.Sub(signedAt)
	if delta < 0 {
		delta = -delta
	}
	if delta > skew {
		return apperr.New(apperr.SignatureStale, "webhook-signature timestamp outside allowed skew")
	}

	expected := computeMAC(secret, ts, body)
	if !hmac.Equal(sigBytes, expected) {
		return apperr.New(apperr.SignatureMismatch, "webhook-signature digest mismatch")
	}
	return nil
}

func computeMAC(secret []byte, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// parseHeader splits "t=<unix>,v0=<hex>" into its components. Order of the
// two fields is not significant; unknown extra fields are ignored.
func parseHeader(header string) (ts, v0 string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v0":
			v0 = kv[1]
		}
	}
	if ts == "" || v0 == "" {
		return "", "", false
	}
	return ts, v0, true
}

// Sign computes the webhook-signature header value for body at ts, using
// secret. Exposed for tests and for any internal relay that needs to
// re-sign a payload.
func Sign(secret []byte, ts time.Time, body []byte) string {
	tsStr := strconv.FormatInt(ts.Unix(), 10)
	mac := computeMAC(secret, tsStr, body)
	return "t=" + tsStr + ",v0=" + hex.EncodeToString(mac)
}
