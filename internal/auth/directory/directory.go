// Package directory is a static principal registry. It stands in for the
// identity service when principals are declared in configuration, and is
// what refresh consults to pick up role changes and deactivation.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
)

// Entry is one principal as written in the config file.
type Entry struct {
	Kind  string   `mapstructure:"kind"`
	ID    string   `mapstructure:"id"`
	Roles []string `mapstructure:"roles"`

	// Active defaults to true when omitted.
	Active *bool `mapstructure:"active"`
}

// Principal converts the entry into its domain type.
func (e Entry) Principal() (domain.Principal, error) {
	kind, err := domain.ParsePrincipalKind(e.Kind)
	if err != nil {
		return nil, err
	}
	if e.ID == "" {
		return nil, errors.New("directory: principal without id")
	}

	active := e.Active == nil || *e.Active

	switch kind {
	case domain.KindAdministrator:
		return domain.Administrator{ID: e.ID, Roles: e.Roles, Active: active}, nil
	default:
		if len(e.Roles) > 0 {
			return nil, fmt.Errorf("directory: regular user %q cannot hold roles", e.ID)
		}
		return domain.RegularUser{ID: e.ID, Active: active}, nil
	}
}

type Directory struct {
	mu         sync.RWMutex
	principals map[domain.PrincipalRef]domain.Principal
}

// New builds a directory from entries. Duplicate kind and id pairs are
// rejected.
func New(entries ...Entry) (*Directory, error) {
	d := &Directory{principals: make(map[domain.PrincipalRef]domain.Principal, len(entries))}

	var errs []error
	for i, e := range entries {
		p, err := e.Principal()
		if err != nil {
			errs = append(errs, fmt.Errorf("principals[%d]: %w", i, err))
			continue
		}
		ref := domain.RefOf(p)
		if _, dup := d.principals[ref]; dup {
			errs = append(errs, fmt.Errorf("principals[%d]: duplicate %s", i, ref))
			continue
		}
		d.principals[ref] = p
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return d, nil
}

// Put adds or replaces a principal.
func (d *Directory) Put(p domain.Principal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.principals[domain.RefOf(p)] = p
}

func (d *Directory) Remove(ref domain.PrincipalRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.principals, ref)
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.principals)
}

// ResolvePrincipal returns domain.ErrPrincipalNotFound for unknown refs.
func (d *Directory) ResolvePrincipal(ctx context.Context, ref domain.PrincipalRef) (domain.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.principals[ref]
	if !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	return p, nil
}
