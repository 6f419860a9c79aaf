package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SignaturePayload computes the value for the X-Storepulse-Signature header.
//
// The signed content is "{unix_timestamp}.{payload}" using HMAC-SHA256, and
// the header value is "t=<unix>,v1=<hex hmac>". Receivers recompute the HMAC
// over the same content and compare with hmac.Equal, rejecting stale
// timestamps to prevent replay.
func SignaturePayload(payload []byte, secret string, now time.Time) string {
	timestamp := now.Unix()
	signedContent := fmt.Sprintf("%d.%s", timestamp, string(payload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, computeHMAC(signedContent, secret))
}

// computeHMAC returns the hex-encoded HMAC-SHA256 of content using secret.
func computeHMAC(content, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
