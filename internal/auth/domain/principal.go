package domain

import (
	"errors"
	"fmt"
	"slices"
)

// ErrPrincipalNotFound is returned by principal lookups for unknown ids.
var ErrPrincipalNotFound = errors.New("domain: principal not found")

// PrincipalKind separates the two populations that can hold tokens. Ids are
// only unique within a kind, so every store key carries both.
type PrincipalKind string

const (
	KindAdministrator PrincipalKind = "admin"
	KindRegularUser   PrincipalKind = "user"
)

// Valid reports whether k is one of the known kinds.
func (k PrincipalKind) Valid() bool {
	return k == KindAdministrator || k == KindRegularUser
}

// ParsePrincipalKind converts a claim or column value into a kind.
func ParsePrincipalKind(s string) (PrincipalKind, error) {
	k := PrincipalKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("domain: unknown principal kind %q", s)
	}
	return k, nil
}

// Principal is what the token flows need from an account. The identity
// collaborator decides who is active and which roles apply; we only read.
type Principal interface {
	PrincipalID() string
	PrincipalKind() PrincipalKind
	PrincipalRoles() []string
	IsActive() bool
}

// PrincipalRef identifies a principal across kinds.
type PrincipalRef struct {
	Kind PrincipalKind
	ID   string
}

// RefOf returns the store key for p.
func RefOf(p Principal) PrincipalRef {
	return PrincipalRef{Kind: p.PrincipalKind(), ID: p.PrincipalID()}
}

func (r PrincipalRef) String() string { return string(r.Kind) + ":" + r.ID }

// Administrator is a back-office account. Roles come from the identity
// collaborator ("superadmin", "moderator", ...).
type Administrator struct {
	ID     string
	Roles  []string
	Active bool
}

func (a Administrator) PrincipalID() string          { return a.ID }
func (a Administrator) PrincipalKind() PrincipalKind { return KindAdministrator }
func (a Administrator) PrincipalRoles() []string     { return slices.Clone(a.Roles) }
func (a Administrator) IsActive() bool               { return a.Active }

// RegularUser is an end-user account. Regular users carry no roles.
type RegularUser struct {
	ID     string
	Active bool
}

func (u RegularUser) PrincipalID() string          { return u.ID }
func (u RegularUser) PrincipalKind() PrincipalKind { return KindRegularUser }
func (u RegularUser) PrincipalRoles() []string     { return nil }
func (u RegularUser) IsActive() bool               { return u.Active }
