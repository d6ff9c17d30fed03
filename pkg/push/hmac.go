// Package push delivers HMAC-signed webhook notifications for task
// events and validates inbound callback tokens.
package push

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
)

// SignatureHeader carries the hex HMAC-SHA256 digest of the request body.
const SignatureHeader = "X-XActions-Signature"

// CallbackToken derives the callback token for a task id. The token
// proves the callback URL was minted by this process.
func CallbackToken(secret []byte, taskID string) string {
	return sign(secret, []byte(taskID))
}

// VerifyCallbackToken compares the presented token against the expected
// one in constant time.
func VerifyCallbackToken(secret []byte, taskID, token string) bool {
	expected := CallbackToken(secret, taskID)
	return hmac.Equal([]byte(expected), []byte(token))
}

// CallbackURL builds the inbound callback URL for a task.
func CallbackURL(baseURL string, secret []byte, taskID string) string {
	return fmt.Sprintf("%s/a2a/callbacks/%s?token=%s",
		baseURL, url.PathEscape(taskID), CallbackToken(secret, taskID))
}

// SignBody returns the hex HMAC-SHA256 digest of the raw body bytes.
func SignBody(secret, body []byte) string {
	return sign(secret, body)
}

func sign(secret, data []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
