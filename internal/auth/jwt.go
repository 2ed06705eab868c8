/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AllGuilds in Claims.Guilds grants access to every guild.
const AllGuilds = "*"

// Claims extends standard registered claims with the guilds a caller may
// control.
type Claims struct {
	UserID string   `json:"uid"`
	Guilds []string `json:"guilds"`
	jwt.RegisteredClaims
}

// CanAccess reports whether the token covers guildID.
func (c *Claims) CanAccess(guildID string) bool {
	if c == nil || guildID == "" {
		return false
	}
	return slices.Contains(c.Guilds, AllGuilds) || slices.Contains(c.Guilds, guildID)
}

// Issue creates JWT token string.
func Issue(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Subject:   claims.UserID,
		Issuer:    "tonelist",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Parse validates token string.
func Parse(secret []byte, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
