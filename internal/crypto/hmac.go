package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Webhook signature headers.
const (
	HeaderTimestamp = "X-Memebot-Timestamp"
	HeaderSignature = "X-Memebot-Signature"
)

// PayloadSigner authenticates outbound webhook bodies with HMAC-SHA256 over
// timestamp + "." + body.
type PayloadSigner struct {
	Secret string
}

// Headers returns the signature headers for body at the current time.
func (p PayloadSigner) Headers(body []byte) map[string]string {
	return p.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (p PayloadSigner) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: p.sign(ts, body),
	}
}

// Verify reports whether sig matches body at timestamp ts.
func (p PayloadSigner) Verify(ts string, body []byte, sig string) bool {
	return hmac.Equal([]byte(p.sign(ts, body)), []byte(sig))
}

func (p PayloadSigner) sign(ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(p.Secret))
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
