// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package token issues and verifies the short-lived capability tokens that
// accompany paginated responses.
//
// Two kinds exist: ClaimsHash binds a viewer to one item in one snapshot
// and gates blob access; ClaimsTimestamp binds the viewer to the snapshot
// itself and renews expired per-item tokens. Both are HMAC-signed JWTs.
package token

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/galleria/internal/apperr"
)

// Token lifetimes.
const (
	// HashTTL is how long a per-item token grants blob access.
	HashTTL = 5 * time.Minute

	// TimestampTTL bounds a snapshot browsing session; it matches the
	// snapshot store's own TTL so renewal works as long as the snapshot
	// lives.
	TimestampTTL = 24 * time.Hour
)

// ClaimsHash binds a viewer to an item within a snapshot.
type ClaimsHash struct {
	// Hash is the item's content hash.
	Hash string `json:"hash"`

	// Timestamp is the snapshot the item was served from.
	Timestamp int64 `json:"timestamp"`

	// AllowOriginal additionally grants the original blob, not just the
	// derivative.
	AllowOriginal bool `json:"allow_original"`

	jwt.RegisteredClaims
}

// ClaimsTimestamp binds a viewer to a snapshot.
type ClaimsTimestamp struct {
	// ShareAlbum and ShareID identify the resolved share the snapshot was
	// opened under; empty for admin sessions.
	ShareAlbum string `json:"share_album,omitempty"`
	ShareID    string `json:"share_id,omitempty"`

	// Timestamp is the snapshot id.
	Timestamp int64 `json:"timestamp"`

	jwt.RegisteredClaims
}

// Signer issues and verifies capability tokens.
type Signer struct {
	key []byte
}

// NewSigner builds a signer from the configured key. An empty key gets a
// random per-process one: tokens then die with the process, which is the
// documented behavior for unconfigured instances.
func NewSigner(key string) *Signer {
	if key != "" {
		return &Signer{key: []byte(key)}
	}
	ephemeral := make([]byte, 32)
	if _, err := rand.Read(ephemeral); err != nil {
		panic("token: crypto/rand unavailable: " + err.Error())
	}
	return &Signer{key: ephemeral}
}

// SignHash issues a per-item token valid for HashTTL.
func (s *Signer) SignHash(hash string, timestamp int64, allowOriginal bool) (string, error) {
	now := time.Now()
	claims := ClaimsHash{
		Hash:          hash,
		Timestamp:     timestamp,
		AllowOriginal: allowOriginal,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(HashTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", apperr.Wrap(apperr.Auth, "sign hash token", err)
	}
	return signed, nil
}

// SignTimestamp issues a snapshot session token valid for TimestampTTL.
func (s *Signer) SignTimestamp(timestamp int64, shareAlbum, shareID string) (string, error) {
	now := time.Now()
	claims := ClaimsTimestamp{
		ShareAlbum: shareAlbum,
		ShareID:    shareID,
		Timestamp:  timestamp,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TimestampTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", apperr.Wrap(apperr.Auth, "sign timestamp token", err)
	}
	return signed, nil
}

func (s *Signer) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return s.key, nil
}

// VerifyHash validates a per-item token. With allowExpired, the signature
// and structure are still enforced but an elapsed expiry is accepted; the
// renewal flow uses this.
func (s *Signer) VerifyHash(tokenString string, allowExpired bool) (*ClaimsHash, error) {
	var opts []jwt.ParserOption
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &ClaimsHash{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Auth, "verify hash token", err)
	}
	if !parsed.Valid {
		return nil, apperr.New(apperr.Auth, "invalid hash token")
	}
	return claims, nil
}

// VerifyTimestamp validates a snapshot session token.
func (s *Signer) VerifyTimestamp(tokenString string) (*ClaimsTimestamp, error) {
	claims := &ClaimsTimestamp{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil {
		return nil, apperr.Wrap(apperr.Auth, "verify timestamp token", err)
	}
	if !parsed.Valid {
		return nil, apperr.New(apperr.Auth, "invalid timestamp token")
	}
	return claims, nil
}

// Renew accepts an expired per-item token plus a still-valid snapshot
// token for the same snapshot, and issues a fresh per-item token with the
// same grants.
func (s *Signer) Renew(expiredHash, timestampToken string) (string, error) {
	hashClaims, err := s.VerifyHash(expiredHash, true)
	if err != nil {
		return "", err
	}
	tsClaims, err := s.VerifyTimestamp(timestampToken)
	if err != nil {
		return "", err
	}
	if tsClaims.Timestamp != hashClaims.Timestamp {
		return "", apperr.New(apperr.Auth, "timestamp token does not match item token")
	}
	return s.SignHash(hashClaims.Hash, hashClaims.Timestamp, hashClaims.AllowOriginal)
}
