package directory

import (
	"errors"

	"github.com/trezcool/rollbook/core/credential"
)

// ErrInvalidCredentials is returned for an unknown alias and for a wrong secret alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// unknownAliasSecret is compared against when the alias is unknown so both failures cost the same.
const unknownAliasSecret = credential.Prefix + "-00000-000000"

// Identity is an authenticated caller.
type Identity struct {
	Alias         string `json:"alias"`
	IdentityToken string `json:"identity_token"`
	StaffOverride bool   `json:"staff"`
}

// Authenticate checks secret against the derived secret of alias, or against the master password
// when one is configured. A master password login is a staff override and is logged as such.
func (dir *Directory) Authenticate(alias, secret string) (Identity, error) {
	entry, ok := dir.Lookup(alias)
	if !ok {
		credential.Equal(unknownAliasSecret, secret)
		return Identity{}, ErrInvalidCredentials
	}

	if dir.opts.MasterPassword != "" && credential.Equal(dir.opts.MasterPassword, secret) {
		idt := Identity{Alias: entry.Alias, IdentityToken: entry.IdentityToken, StaffOverride: true}
		dir.log.Warn("staff override login", idt)
		return idt, nil
	}
	if !credential.Equal(entry.Secret, secret) {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Alias: entry.Alias, IdentityToken: entry.IdentityToken}, nil
}
