package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ShopPilot/pkg/model"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

const awsScheme = "aws"

// SecretsAPI the Secrets Manager calls the vault makes
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// SecretsManagerVault one secret per org named <prefix><orgID>
type SecretsManagerVault struct {
	client SecretsAPI
	prefix string
	cache  map[string]model.Credentials
	mu     sync.RWMutex
}

func NewSecretsManagerVault(cfg sdkaws.Config, prefix string) *SecretsManagerVault {
	return NewSecretsManagerVaultWithClient(secretsmanager.NewFromConfig(cfg), prefix)
}

func NewSecretsManagerVaultWithClient(client SecretsAPI, prefix string) *SecretsManagerVault {
	return &SecretsManagerVault{
		client: client,
		prefix: prefix,
		cache:  make(map[string]model.Credentials),
	}
}

func (v *SecretsManagerVault) Scheme() string { return awsScheme }

// Seal writes a new secret version, creating the secret on first use
func (v *SecretsManagerVault) Seal(ctx context.Context, orgID string, creds model.Credentials) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	name := v.prefix + orgID
	secret := string(raw)

	_, err = v.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     &name,
		SecretString: &secret,
	})
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		_, err = v.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         &name,
			SecretString: &secret,
			Description:  sdkaws.String("ShopPilot marketplace credentials for org " + orgID),
		})
	}
	if err != nil {
		return "", fmt.Errorf("store secret %s: %w", name, err)
	}

	v.mu.Lock()
	v.cache[name] = creds
	v.mu.Unlock()

	return awsScheme + ":" + name, nil
}

func (v *SecretsManagerVault) Open(ctx context.Context, ref string) (model.Credentials, error) {
	name, ok := strings.CutPrefix(ref, awsScheme+":")
	if !ok || name == "" {
		return model.Credentials{}, ErrUnknownRef
	}

	v.mu.RLock()
	if c, ok := v.cache[name]; ok {
		v.mu.RUnlock()
		return c, nil
	}
	v.mu.RUnlock()

	out, err := v.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &name})
	if err != nil {
		return model.Credentials{}, fmt.Errorf("get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return model.Credentials{}, fmt.Errorf("secret %s has no string value", name)
	}

	var creds model.Credentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return model.Credentials{}, fmt.Errorf("decode secret %s: %w", name, err)
	}

	v.mu.Lock()
	v.cache[name] = creds
	v.mu.Unlock()
	return creds, nil
}
