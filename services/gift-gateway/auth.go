package main

import (
	"encoding/hex"
	"time"

	gatewayauth "github.com/ShivamSoni20/sol-gift/gateway/auth"
)

// Principal identifies the API key that authenticated a request.
type Principal = gatewayauth.Principal

// Authenticator verifies HMAC-signed gateway requests.
type Authenticator = gatewayauth.Authenticator

func newAuthenticator(keys []APIKeyConfig, skew, nonceTTL time.Duration, nonceCapacity int) *Authenticator {
	secrets := make(map[string]string, len(keys))
	for _, key := range keys {
		secrets[key.Key] = key.Secret
	}
	return gatewayauth.NewAuthenticator(secrets, skew, nonceTTL, nonceCapacity, time.Now)
}

func computeSignature(secret, timestamp, nonce, method, path string, body []byte) string {
	return hex.EncodeToString(gatewayauth.ComputeSignature(secret, timestamp, nonce, method, path, body))
}
