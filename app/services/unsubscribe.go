package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// UnsubscribeSigner issues and verifies newsletter opt-out links
type UnsubscribeSigner struct {
	secret  []byte
	baseURL string
}

func NewUnsubscribeSigner(secret, baseURL string) *UnsubscribeSigner {
	return &UnsubscribeSigner{secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "/")}
}

// Token returns the HMAC-SHA256 of the client id, base64url without padding
func (s *UnsubscribeSigner) Token(clientID uint) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatUint(uint64(clientID), 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *UnsubscribeSigner) Verify(clientID uint, token string) bool {
	if len(s.secret) == 0 || token == "" {
		return false
	}
	return hmac.Equal([]byte(s.Token(clientID)), []byte(token))
}

// URL is the public opt-out link for a client. Empty when no secret is configured.
func (s *UnsubscribeSigner) URL(clientID uint) string {
	if len(s.secret) == 0 {
		return ""
	}
	q := url.Values{}
	q.Set("c", strconv.FormatUint(uint64(clientID), 10))
	q.Set("t", s.Token(clientID))
	return fmt.Sprintf("%s/api/v1/newsletter/unsubscribe?%s", s.baseURL, q.Encode())
}
