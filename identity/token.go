package identity

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/stratgate/sessions"
	"golang.org/x/oauth2"
)

func (c *Client) snapshotFromToken(tok *oauth2.Token, fallbackUserID, fallbackEmail string) *sessions.Snapshot {
	expiresAt, _ := extraInt(tok, "expires_at")
	expiresIn, _ := extraInt(tok, "expires_in")

	userID, email := identityFromToken(tok)
	if userID == "" {
		userID = fallbackUserID
	}
	if email == "" {
		email = fallbackEmail
	}

	return &sessions.Snapshot{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    c.resolveExpiry(expiresAt, expiresIn, tok.Expiry),
		UserID:       userID,
		Email:        email,
	}
}

// resolveExpiry prefers the provider's absolute expiry. Otherwise it uses the
// relative lifetime, floored at 60 seconds.
func (c *Client) resolveExpiry(expiresAt, expiresIn int64, expiry time.Time) int64 {
	if expiresAt > 0 {
		return expiresAt
	}
	now := c.nowTime()
	lifetime := time.Duration(expiresIn) * time.Second
	if lifetime <= 0 && !expiry.IsZero() {
		lifetime = expiry.Sub(now)
	}
	if lifetime < minTokenLifetime {
		lifetime = minTokenLifetime
	}
	return now.Add(lifetime).Unix()
}

// identityFromToken reads the subject from a "user" object in the token
// response, falling back to the claims of a JWT access token. The claims are
// not verified here; the origin API verifies the token it receives.
func identityFromToken(tok *oauth2.Token) (string, string) {
	if user, ok := tok.Extra("user").(map[string]interface{}); ok {
		id, _ := user["id"].(string)
		email, _ := user["email"].(string)
		if id != "" {
			return id, email
		}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return "", ""
	}
	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	return sub, email
}

func extraInt(tok *oauth2.Token, key string) (int64, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
