package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>".
const SignatureHeader = "X-Xcscore-Signature"

var (
	ErrBadSignature   = errors.New("webhooks: signature mismatch")
	ErrStaleSignature = errors.New("webhooks: signature timestamp outside tolerance")
	ErrMalformedSig   = errors.New("webhooks: malformed signature header")
)

func mac(secret string, ts int64, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(strconv.FormatInt(ts, 10)))
	m.Write([]byte{'.'})
	m.Write(body)
	return m.Sum(nil)
}

// Sign returns the signature header value for body sent at ts.
func Sign(secret string, ts time.Time, body []byte) string {
	sec := ts.Unix()
	return "t=" + strconv.FormatInt(sec, 10) + ",v1=" + hex.EncodeToString(mac(secret, sec, body))
}

// Verify checks a signature header against body. A zero tolerance skips the
// timestamp check.
func Verify(secret string, body []byte, header string, now time.Time, tolerance time.Duration) error {
	var ts int64
	var sig []byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedSig
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrMalformedSig
			}
			ts = n
		case "v1":
			b, err := hex.DecodeString(v)
			if err != nil {
				return ErrMalformedSig
			}
			sig = b
		}
	}
	if ts == 0 || sig == nil {
		return ErrMalformedSig
	}
	if !hmac.Equal(mac(secret, ts, body), sig) {
		return ErrBadSignature
	}
	if tolerance > 0 {
		d := now.Sub(time.Unix(ts, 0))
		if d < 0 {
			d = -d
		}
		if d > tolerance {
			return ErrStaleSignature
		}
	}
	return nil
}
