// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/galleria/internal/models"
)

func testHash() string {
	return strings.Repeat("ab", models.IDLength/2)
}

func TestHashTokenRoundTrip(t *testing.T) {
	signer := NewSigner("unit-test-key")

	signed, err := signer.SignHash(testHash(), 1700000000000, true)
	require.NoError(t, err)

	claims, err := signer.VerifyHash(signed, false)
	require.NoError(t, err)
	assert.Equal(t, testHash(), claims.Hash)
	assert.Equal(t, int64(1700000000000), claims.Timestamp)
	assert.True(t, claims.AllowOriginal)
}

func TestTimestampTokenRoundTrip(t *testing.T) {
	signer := NewSigner("unit-test-key")

	signed, err := signer.SignTimestamp(42, testHash(), "share-1")
	require.NoError(t, err)

	claims, err := signer.VerifyTimestamp(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.Timestamp)
	assert.Equal(t, testHash(), claims.ShareAlbum)
	assert.Equal(t, "share-1", claims.ShareID)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	signer := NewSigner("key-one")
	other := NewSigner("key-two")

	signed, err := signer.SignHash(testHash(), 1, false)
	require.NoError(t, err)

	_, err = other.VerifyHash(signed, false)
	assert.Error(t, err)
	_, err = other.VerifyHash(signed, true)
	assert.Error(t, err, "allow-expired still verifies the signature")
}

// expiredHashToken signs a ClaimsHash whose expiry is already past, using
// the signer's own key so only the expiry check can fail.
func expiredHashToken(t *testing.T, signer *Signer, timestamp int64) string {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	claims := ClaimsHash{
		Hash:          testHash(),
		Timestamp:     timestamp,
		AllowOriginal: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(HashTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signer.key)
	require.NoError(t, err)
	return signed
}

func TestExpiredTokenBehavior(t *testing.T) {
	signer := NewSigner("unit-test-key")
	expired := expiredHashToken(t, signer, 42)

	// Fresh verification fails after the TTL.
	_, err := signer.VerifyHash(expired, false)
	assert.Error(t, err)

	// Decode-with-allow-expired succeeds and preserves the claims.
	claims, err := signer.VerifyHash(expired, true)
	require.NoError(t, err)
	assert.Equal(t, testHash(), claims.Hash)
	assert.True(t, claims.AllowOriginal)
}

func TestRenew(t *testing.T) {
	signer := NewSigner("unit-test-key")
	expired := expiredHashToken(t, signer, 42)

	tsToken, err := signer.SignTimestamp(42, "", "")
	require.NoError(t, err)

	fresh, err := signer.Renew(expired, tsToken)
	require.NoError(t, err)

	claims, err := signer.VerifyHash(fresh, false)
	require.NoError(t, err)
	assert.Equal(t, testHash(), claims.Hash)
	assert.Equal(t, int64(42), claims.Timestamp)
	assert.True(t, claims.AllowOriginal)
}

func TestRenewRejectsMismatchedSnapshot(t *testing.T) {
	signer := NewSigner("unit-test-key")
	expired := expiredHashToken(t, signer, 42)

	tsToken, err := signer.SignTimestamp(43, "", "")
	require.NoError(t, err)

	_, err = signer.Renew(expired, tsToken)
	assert.Error(t, err)
}

func TestEphemeralKeyIsProcessLocal(t *testing.T) {
	a := NewSigner("")
	b := NewSigner("")

	signed, err := a.SignHash(testHash(), 1, false)
	require.NoError(t, err)

	_, err = a.VerifyHash(signed, false)
	assert.NoError(t, err)
	_, err = b.VerifyHash(signed, false)
	assert.Error(t, err)
}
