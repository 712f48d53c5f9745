package ethrelay

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/compose-network/bonsai-relay/x/relay"
)

// EthClient is the subset of *ethclient.Client the relay uses.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	Close()
}

// DialFunc opens a node connection.
type DialFunc func(ctx context.Context, url string) (EthClient, error)

// DialEthClient dials with go-ethereum's ethclient.
func DialEthClient(ctx context.Context, url string) (EthClient, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ErrWrongChain is returned when the node serves another chain than
// configured. It is never retried.
var ErrWrongChain = errors.New("eth node serves a different chain")

// dialNode makes a single connection attempt and checks that the node
// serves cfg.ChainID. A chain id mismatch is marked permanent.
func dialNode(ctx context.Context, cfg relay.ClientConfig, dial DialFunc, attempt uint64, log zerolog.Logger) (EthClient, error) {
	if dial == nil {
		dial = DialEthClient
	}

	c, err := dial(ctx, cfg.NodeURL)
	if err != nil {
		log.Warn().Err(err).
			Str("eth_node", cfg.NodeURL).
			Uint64("attempt", attempt+1).
			Uint64("max_attempts", cfg.Retry.MaxAttempts()).
			Msg("Failed to connect to eth node")
		return nil, err
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		c.Close()
		log.Warn().Err(err).Uint64("attempt", attempt+1).Msg("Failed to query chain id")
		return nil, err
	}
	if chainID.Uint64() != cfg.ChainID {
		c.Close()
		return nil, relay.Permanent(fmt.Errorf("%w: got %s, want %d", ErrWrongChain, chainID, cfg.ChainID))
	}

	log.Info().Str("eth_node", cfg.NodeURL).Uint64("chain_id", cfg.ChainID).Msg("Connected to eth node")
	return c, nil
}

var _ EthClient = (*ethclient.Client)(nil)
