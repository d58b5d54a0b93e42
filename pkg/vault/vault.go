// Package vault seals marketplace credentials. Only opaque references are ever
// stored next to the fulfillment settings.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ShopPilot/pkg/model"
)

// ErrUnknownRef reference scheme not served by any backend
var ErrUnknownRef = errors.New("unknown credentials reference")

// Backend one storage scheme, refs look like "<scheme>:<opaque>"
type Backend interface {
	Scheme() string
	Seal(ctx context.Context, orgID string, creds model.Credentials) (string, error)
	Open(ctx context.Context, ref string) (model.Credentials, error)
}

// Vault seals with the primary backend and opens refs of any registered one,
// so switching backends keeps existing refs readable.
type Vault struct {
	primary  Backend
	backends map[string]Backend
}

func New(primary Backend, others ...Backend) *Vault {
	v := &Vault{primary: primary, backends: map[string]Backend{primary.Scheme(): primary}}
	for _, b := range others {
		v.backends[b.Scheme()] = b
	}
	return v
}

func (v *Vault) Seal(ctx context.Context, orgID string, creds model.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
	}
	return v.primary.Seal(ctx, orgID, creds)
}

func (v *Vault) Open(ctx context.Context, ref string) (model.Credentials, error) {
	scheme, _, ok := strings.Cut(ref, ":")
	if !ok {
		return model.Credentials{}, ErrUnknownRef
	}
	b, ok := v.backends[scheme]
	if !ok {
		return model.Credentials{}, fmt.Errorf("%w: scheme %q", ErrUnknownRef, scheme)
	}
	return b.Open(ctx, ref)
}
