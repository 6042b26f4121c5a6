package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Token derives the credential a client presents for a user id. Shared-
// secret HMAC keeps the check local to the gateway; a real deployment would
// swap this for its identity provider.
func Token(secret, userID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (ctl *Controller) verifyToken(userID, token string) bool {
	expect := Token(ctl.opts.Secret, userID)
	return hmac.Equal([]byte(expect), []byte(token))
}
