package lark

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Sign computes the custom-bot request signature for a timestamp in Unix
// seconds. The vendor scheme uses "{timestamp}\n{secret}" as the HMAC-SHA256
// key with an empty message; the raw digest is base64-encoded.
//
// Note this differs from the DingTalk variant, which keys on the secret and
// signs the concatenated string.
func Sign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// SignedEnvelope couples a signature with the timestamp it was derived from.
// The webhook rejects messages where the two disagree, so they are only ever
// produced together via NewEnvelope.
type SignedEnvelope struct {
	Timestamp int64
	Sign      string
}

// NewEnvelope signs the given timestamp with secret.
func NewEnvelope(timestamp int64, secret string) SignedEnvelope {
	return SignedEnvelope{
		Timestamp: timestamp,
		Sign:      Sign(timestamp, secret),
	}
}
