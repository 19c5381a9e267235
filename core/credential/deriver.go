// Package credential derives the reproducible secrets students and teachers sign in with.
package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/trezcool/rollbook/core"
)

const (
	// Prefix starts every derived secret.
	Prefix = "rb"

	firstGroupLen  = 5
	secondGroupLen = 6
)

var (
	salt = []byte("rollbook.core.credential")
	info = []byte("directory secret v1")
)

// Deriver maps identity tokens to secrets with a key expanded from the process key material.
// It is safe for concurrent use.
type Deriver struct {
	key []byte
}

// NewDeriver returns a *core.ConfigError when keyMaterial is empty.
func NewDeriver(keyMaterial []byte) (*Deriver, error) {
	if len(strings.TrimSpace(string(keyMaterial))) == 0 {
		return nil, core.NewConfigError("SECRET_KEY", "credential key material is required")
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, keyMaterial, salt, info), key); err != nil {
		return nil, errors.Wrap(err, "expanding credential key")
	}
	return &Deriver{key: key}, nil
}

// Derive returns the secret for identityToken, formatted `rb-XXXXX-XXXXXX`.
func (d *Deriver) Derive(identityToken string) string {
	sig := d.sign(strings.TrimSpace(identityToken))
	return Prefix + "-" + sig[:firstGroupLen] + "-" + sig[firstGroupLen:firstGroupLen+secondGroupLen]
}

// Verify checks supplied against the secret of identityToken in constant time.
func (d *Deriver) Verify(identityToken, supplied string) bool {
	return Equal(d.Derive(identityToken), supplied)
}

// Equal compares two secrets in constant time.
func Equal(expected, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

func (d *Deriver) sign(val string) string {
	h := hmac.New(sha256.New, d.key)
	_, _ = h.Write([]byte(val)) // hash.Hash never returns an error
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
