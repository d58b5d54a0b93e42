package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"ShopPilot/pkg/model"

	"golang.org/x/crypto/nacl/secretbox"
)

const localScheme = "local"

// LocalVault seals credentials with a symmetric secretbox key; the sealed blob is the ref itself
type LocalVault struct {
	key [32]byte
}

// NewLocalVault key is 32 bytes, standard base64
func NewLocalVault(encodedKey string) (*LocalVault, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode vault key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(raw))
	}
	v := &LocalVault{}
	copy(v.key[:], raw)
	return v, nil
}

func (v *LocalVault) Scheme() string { return localScheme }

func (v *LocalVault) Seal(_ context.Context, _ string, creds model.Credentials) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, &v.key)
	return localScheme + ":" + base64.RawURLEncoding.EncodeToString(box), nil
}

func (v *LocalVault) Open(_ context.Context, ref string) (model.Credentials, error) {
	var creds model.Credentials

	encoded, ok := strings.CutPrefix(ref, localScheme+":")
	if !ok {
		return creds, ErrUnknownRef
	}
	box, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return creds, fmt.Errorf("decode sealed credentials: %w", err)
	}
	if len(box) < 24+secretbox.Overhead {
		return creds, errors.New("sealed credentials too short")
	}

	var nonce [24]byte
	copy(nonce[:], box[:24])
	plain, ok := secretbox.Open(nil, box[24:], &nonce, &v.key)
	if !ok {
		return creds, errors.New("sealed credentials failed authentication")
	}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return creds, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}
