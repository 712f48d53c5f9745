package ethrelay

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const anvilKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeSub struct {
	errCh chan error
	once  sync.Once
}

func newFakeSub() *fakeSub { return &fakeSub{errCh: make(chan error, 1)} }

func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.errCh) }) }
func (s *fakeSub) Err() <-chan error { return s.errCh }

// fakeEthClient records sent transactions and exposes the log channel of
// the latest subscription.
type fakeEthClient struct {
	chainID      int64
	baseFee      *big.Int
	estimate     ethereum.CallMsg
	subscribeErr error

	mu     sync.Mutex
	logs   chan<- types.Log
	sub    *fakeSub
	closed bool

	subscribed chan struct{}
	sent       chan *types.Transaction
}

func newFakeEthClient() *fakeEthClient {
	return &fakeEthClient{
		chainID:    31337,
		baseFee:    big.NewInt(10_000_000_000),
		subscribed: make(chan struct{}, 4),
		sent:       make(chan *types.Transaction, 4),
	}
}

func (c *fakeEthClient) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(c.chainID), nil
}

func (c *fakeEthClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (c *fakeEthClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (c *fakeEthClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: c.baseFee}, nil
}

func (c *fakeEthClient) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	c.estimate = msg
	c.mu.Unlock()
	return 100_000, nil
}

func (c *fakeEthClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.sent <- tx
	return nil
}

func (c *fakeEthClient) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	c.mu.Lock()
	c.logs = ch
	c.sub = newFakeSub()
	sub := c.sub
	c.mu.Unlock()
	c.subscribed <- struct{}{}
	return sub, nil
}

func (c *fakeEthClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeEthClient) emit(lg types.Log) {
	c.mu.Lock()
	ch := c.logs
	c.mu.Unlock()
	ch <- lg
}

func (c *fakeEthClient) drop(err error) {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	sub.errCh <- err
}

func dialerFor(clients ...*fakeEthClient) (DialFunc, *int) {
	var mu sync.Mutex
	calls := 0
	return func(context.Context, string) (EthClient, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if len(clients) == 0 {
			return nil, errors.New("connection refused")
		}
		c := clients[0]
		if len(clients) > 1 {
			clients = clients[1:]
		}
		return c, nil
	}, &calls
}
