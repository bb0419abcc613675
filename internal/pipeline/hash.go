// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package pipeline

import (
	"encoding/hex"
	"io"
	"os"

	"lukechampine.com/blake3"

	"github.com/tomtom215/galleria/internal/apperr"
)

// hashFile streams a file through BLAKE3 and returns the 64-char hex id.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.Temp(apperr.Wrap(apperr.IO, "open for hashing", err))
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", apperr.Temp(apperr.Wrap(apperr.IO, "hash stream", err))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes hashes an in-memory buffer. Tests and the upload boundary use
// it to predict ids.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
