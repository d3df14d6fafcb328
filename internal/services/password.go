package services

import (
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns a plain-text password into a storable hash.
type Hasher interface {
	Hash(password string) (string, error)
}

// bcryptMaxBytes is the longest input bcrypt looks at.
const bcryptMaxBytes = 72

// BcryptHasher hashes passwords with bcrypt at the configured cost.
// A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

// Hash returns the bcrypt hash of password. Inputs longer than 72 bytes are
// cut at the last full rune within that limit, which is what bcrypt reads
// anyway; x/crypto rejects them outright instead.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword(clip72(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func clip72(s string) []byte {
	if len(s) <= bcryptMaxBytes {
		return []byte(s)
	}
	cut := 0
	for cut < len(s) {
		_, size := utf8.DecodeRuneInString(s[cut:])
		if cut+size > bcryptMaxBytes {
			break
		}
		cut += size
	}
	return []byte(s[:cut])
}
