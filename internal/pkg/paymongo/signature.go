package paymongo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the request header PayMongo signs webhook deliveries with.
const SignatureHeader = "Paymongo-Signature"

// SignatureParts is the parsed form of a Paymongo-Signature header:
// t=<unix>,te=<hex>,li=<hex>. A bare hex header only fills Bare.
type SignatureParts struct {
	Timestamp string
	Test      string
	Live      string
	Bare      string
}

// DigestFor returns the signature that must match: li for live mode, te
// otherwise, or the bare value for unstructured headers.
func (p SignatureParts) DigestFor(live bool) string {
	switch {
	case p.Bare != "":
		return p.Bare
	case live:
		return p.Live
	default:
		return p.Test
	}
}

// ParseSignatureHeader splits the header into its parts. ok is false when the
// header is empty or carries no usable signature.
func ParseSignatureHeader(header string) (SignatureParts, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return SignatureParts{}, false
	}
	if !strings.Contains(header, "=") {
		return SignatureParts{Bare: strings.ToLower(header)}, true
	}

	var p SignatureParts
	for _, item := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(item), "=")
		if !found {
			return SignatureParts{}, false
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "t":
			p.Timestamp = value
		case "te":
			p.Test = strings.ToLower(value)
		case "li":
			p.Live = strings.ToLower(value)
		}
	}
	if p.Timestamp == "" || (p.Test == "" && p.Live == "") {
		return SignatureParts{}, false
	}
	return p, true
}

// Verifier checks webhook signatures. A zero Tolerance disables the
// timestamp window check. LiveMode selects the li signature, te otherwise.
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	LiveMode  bool
	Now       func() time.Time
}

// NewVerifier creates a verifier for the given webhook secret.
func NewVerifier(secret string, tolerance time.Duration, live bool) *Verifier {
	return &Verifier{Secret: secret, Tolerance: tolerance, LiveMode: live, Now: time.Now}
}

// VerifySignature reports whether signatureHeader is a valid test-mode
// HMAC-SHA256 of payload keyed with secret. It never returns true for an
// empty secret or a malformed header.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	return (&Verifier{Secret: secret}).Verify(payload, signatureHeader)
}

// Verify checks payload against the header using the verifier's secret.
func (v *Verifier) Verify(payload []byte, signatureHeader string) bool {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return false
	}

	parts, ok := ParseSignatureHeader(signatureHeader)
	if !ok {
		return false
	}
	digest := parts.DigestFor(v.LiveMode)
	if digest == "" {
		return false
	}
	expected, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}

	if parts.Bare != "" {
		return verifyHMAC(payload, expected, []byte(secret))
	}

	if v.Tolerance > 0 {
		ts, err := strconv.ParseInt(parts.Timestamp, 10, 64)
		if err != nil {
			return false
		}
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		age := now().Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > v.Tolerance {
			return false
		}
	}

	signed := make([]byte, 0, len(parts.Timestamp)+1+len(payload))
	signed = append(signed, parts.Timestamp...)
	signed = append(signed, '.')
	signed = append(signed, payload...)
	return verifyHMAC(signed, expected, []byte(secret))
}

// Sign builds a structured header for payload. Used by tests and the CLI to
// produce deliveries the verifier accepts.
func Sign(payload []byte, secret string, at time.Time, live bool) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	digest := hex.EncodeToString(mac.Sum(nil))
	if live {
		return "t=" + ts + ",te=,li=" + digest
	}
	return "t=" + ts + ",te=" + digest + ",li="
}

func verifyHMAC(payload, expectedSig, secret []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
