package migrations

import (
	"crypto/sha256"
	"encoding/base32"
	"hash"

	"github.com/pkg/errors"
)

// IDPrefix is the hash-scheme marker every migration id starts with.
const IDPrefix = "m1"

// idEncoding is lowercase unpadded base32. A 32-byte SHA-256 digest encodes
// to 52 characters, so ids are 54 characters including the prefix.
var idEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Hasher computes content-addressed migration ids.
//
// The id covers the parent id and the migration's statements as a token
// stream. Hashing tokens rather than raw text makes the id insensitive to
// whitespace, indentation, and comments, so the id computed while writing a
// file (statement by statement) matches the id recomputed when reading the
// file back (from the stored body). Statement terminators participate in the
// hash so that statement boundaries cannot be shifted without changing the id.
//
// Example usage:
//
//	h := migrations.NewHasher("initial")
//	if err := h.AddStatement("CREATE TYPE default::User"); err != nil {
//		return err
//	}
//	id := h.Sum() // "m1..."
type Hasher struct {
	h hash.Hash
}

// NewHasher creates a Hasher seeded with the parent migration id. The parent
// is part of the identity: re-parenting a migration always produces a new id.
func NewHasher(parentID string) *Hasher {
	h := sha256.New()
	h.Write([]byte("migration\x00"))
	h.Write([]byte(parentID))
	h.Write([]byte{0})

	return &Hasher{h: h}
}

// AddStatement folds one statement into the hash. The statement must be
// tokenizable; text that fails to tokenize indicates a corrupt migration and
// is returned as an error. A trailing semicolon, if present, is already a
// token and an implicit terminator is appended either way, so callers may
// pass statements with or without one as long as they are consistent with
// how the file is written.
func (h *Hasher) AddStatement(text string) error {
	tokens, err := Tokenize(text)
	if err != nil {
		return errors.Wrap(err, "invalid statement")
	}

	for _, tok := range tokens {
		if tok.Type == symSemicolon {
			continue
		}
		h.h.Write([]byte(tok.Value))
		h.h.Write([]byte{0})
	}

	h.h.Write([]byte(";\x00"))
	return nil
}

// Sum returns the migration id for everything added so far.
func (h *Hasher) Sum() string {
	return IDPrefix + idEncoding.EncodeToString(h.h.Sum(nil))
}

// ComputeID is a convenience wrapper that hashes a parent id and a statement
// list in one call.
func ComputeID(parentID string, statements []string) (string, error) {
	h := NewHasher(parentID)
	for _, stmt := range statements {
		if err := h.AddStatement(stmt); err != nil {
			return "", err
		}
	}

	return h.Sum(), nil
}
