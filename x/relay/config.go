package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ClientConfig is the node connection handed to the relay. It is built once
// and passed through unmodified.
type ClientConfig struct {
	NodeURL    string
	ChainID    uint64
	PrivateKey string
	Retry      RetryPolicy
}

// Validate checks that the connection settings are usable.
func (c ClientConfig) Validate() error {
	if c.NodeURL == "" {
		return errors.New("eth node url is required")
	}
	if c.ChainID == 0 {
		return errors.New("chain id is required")
	}
	if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x")); err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	return c.Retry.Validate()
}

// Config describes the relay service itself.
type Config struct {
	// Address of the on-chain relay contract.
	RelayAddress common.Address
	// RestAPI enables the HTTP API on RestAPIPort.
	RestAPI     bool
	RestAPIPort string
	// DevMode resolves callbacks with execute-only sessions.
	DevMode bool
}

// Validate checks the relay settings.
func (c Config) Validate() error {
	if c.RelayAddress == (common.Address{}) {
		return errors.New("relay contract address is required")
	}
	if c.RestAPI && c.RestAPIPort == "" {
		return errors.New("rest api port is required when the rest api is enabled")
	}
	return nil
}
