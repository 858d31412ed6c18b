package vault

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/keyvault/azsecrets"
)

const masterKeyLength = 32

// KeySourceConfig carries the chained master-key loader's configuration
// (SPEC_FULL §4.1.bis): an external KMS client is tried first, falling back
// to an operator-supplied environment value.
type KeySourceConfig struct {
	KMSEnabled bool
	KMSVaultURL string
	KMSSecretName string
	EnvMasterKeyHex string
}

// KeySource resolves and caches the organization-scoped master key for the
// life of the process. Rotation is operator-triggered (Open Question
// decision, see DESIGN.md): once resolved the key is never reloaded, so a
// new key takes effect only after a process restart.
type KeySource struct {
	cfg    KeySourceConfig
	client *azsecrets.Client

	mu  sync.Mutex
	key []byte
}

// NewKeySource constructs a KeySource. When KMS is enabled, it authenticates
// eagerly via azidentity's default credential chain so a misconfiguration
// surfaces at startup rather than on first use.
func NewKeySource(cfg KeySourceConfig) (*KeySource, error) {
	ks := &KeySource{cfg: cfg}
	if cfg.KMSEnabled {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}
		client, err := azsecrets.NewClient(cfg.KMSVaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("azure secrets client: %w", err)
		}
		ks.client = client
	}
	return ks, nil
}

// MasterKey returns the cached master key, resolving it on first call via
// the KMS-then-env chain.
func (ks *KeySource) MasterKey(ctx context.Context) ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.key != nil {
		return ks.key, nil
	}

	key, err := ks.loadFromKMS(ctx)
	if err != nil {
		return nil, fmt.Errorf("kms master key: %w", err)
	}
	if key == nil {
		key, err = ks.loadFromEnv()
		if err != nil {
			return nil, err
		}
	}
	if key == nil {
		return nil, fmt.Errorf("no master key source configured: enable VAULT_KMS or set VAULT_MASTER_KEY")
	}
	ks.key = key
	return key, nil
}

func (ks *KeySource) loadFromKMS(ctx context.Context) ([]byte, error) {
	if !ks.cfg.KMSEnabled || ks.client == nil {
		return nil, nil
	}
	resp, err := ks.client.GetSecret(ctx, ks.cfg.KMSSecretName, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("secret %s has no value", ks.cfg.KMSSecretName)
	}
	return decodeHexKey(*resp.Value)
}

func (ks *KeySource) loadFromEnv() ([]byte, error) {
	raw := strings.TrimSpace(ks.cfg.EnvMasterKeyHex)
	if raw == "" {
		return nil, nil
	}
	return decodeHexKey(raw)
}

func decodeHexKey(raw string) ([]byte, error) {
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != masterKeyLength {
		return nil, fmt.Errorf("master key must decode to %d bytes, got %d", masterKeyLength, len(key))
	}
	return key, nil
}
