// Package config loads service settings from the environment and the chain
// layout from an optional TOML genesis file.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

type Config struct {
	Addr     string
	BasePath string

	AuthSecret string
	AccessTTL  time.Duration

	GenesisFile string
	// Operator is OPERATOR_ADDRESS. It may be left empty only when the
	// genesis file names the operator.
	Operator string
	// SignerKey is the hex private key of the attestation signer. Without it
	// the service cannot issue attestations but still verifies them.
	SignerKey     string
	SnowflakeNode int64

	// LedgerPersist snapshots ledger state into the database after every
	// committed transaction and restores it on start.
	LedgerPersist bool

	IndexerEnabled  bool
	IndexerInterval time.Duration

	Database database.Config
	Log      utilities.Config
}

// FromEnv reads the service config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:            getenv("HTTP_ADDR", "0.0.0.0:8431"),
		BasePath:        strings.TrimRight(getenv("HTTP_BASE_PATH", "/unempower-api"), "/"),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		AccessTTL:       duration("AUTH_ACCESS_TTL", time.Hour),
		GenesisFile:     os.Getenv("GENESIS_FILE"),
		Operator:        strings.TrimSpace(os.Getenv("OPERATOR_ADDRESS")),
		SignerKey:       os.Getenv("SIGNER_PRIVATE_KEY"),
		SnowflakeNode:   utilities.SnowflakeNodeFromEnv(),
		LedgerPersist:   os.Getenv("LEDGER_PERSIST") != "0",
		IndexerEnabled:  os.Getenv("INDEXER_ENABLED") == "1",
		IndexerInterval: duration("INDEXER_INTERVAL", 2*time.Second),
		Database:        database.ConfigFromEnv(),
		Log:             utilities.ConfigFromEnv(),
	}
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	if len(c.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be at least 32 characters")
	}
	if c.SignerKey != "" {
		if _, err := c.ParseSignerKey(); err != nil {
			return err
		}
	}
	return nil
}

// Genesis returns the chain layout: GenesisFile when set, the built-in
// defaults otherwise. An operator set in the file wins over
// OPERATOR_ADDRESS. There is no fallback operator; a genesis without one is
// an error.
func (c Config) Genesis() (Genesis, error) {
	var op common.Address
	if c.Operator != "" {
		if !common.IsHexAddress(c.Operator) {
			return Genesis{}, fmt.Errorf("OPERATOR_ADDRESS %q is not an address", c.Operator)
		}
		op = common.HexToAddress(c.Operator)
	}
	if c.GenesisFile != "" {
		return LoadGenesis(c.GenesisFile, op)
	}
	g := DefaultGenesis(op)
	if err := g.Validate(); err != nil {
		return Genesis{}, fmt.Errorf("OPERATOR_ADDRESS is required without GENESIS_FILE: %w", err)
	}
	return g, nil
}

// ParseSignerKey decodes SignerKey, returning nil when none is configured.
func (c Config) ParseSignerKey() (*ecdsa.PrivateKey, error) {
	if c.SignerKey == "" {
		return nil, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.SignerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("SIGNER_PRIVATE_KEY: %w", err)
	}
	return key, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func duration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
