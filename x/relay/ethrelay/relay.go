// Package ethrelay watches the on-chain relay contract for callback requests,
// resolves them through the proving service and submits the results.
package ethrelay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/compose-network/bonsai-relay/server/api"
	"github.com/compose-network/bonsai-relay/x/guest"
	"github.com/compose-network/bonsai-relay/x/relay"
	"github.com/compose-network/bonsai-relay/x/resolver"
)

// Stats is a snapshot of the relay's progress.
type Stats struct {
	Connected bool   `json:"connected"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	LastBlock uint64 `json:"last_block"`
	LastTx    string `json:"last_tx,omitempty"`
}

// Relay implements relay.Relayer against an Ethereum node.
type Relay struct {
	cfg          relay.Config
	registry     *guest.Registry
	resolver     resolver.Resolver
	binding      *Binding
	dial         DialFunc
	apiCfg       api.Config
	metricsRoute bool
	log          zerolog.Logger
	metrics      *relayMetrics

	connected atomic.Bool
	processed atomic.Uint64
	failed    atomic.Uint64
	lastBlock atomic.Uint64
	mu        sync.Mutex
	lastTx    common.Hash
}

// Option customizes a Relay.
type Option func(*Relay)

// WithDialer replaces the ethclient dialer.
func WithDialer(d DialFunc) Option {
	return func(r *Relay) { r.dial = d }
}

// WithAPIConfig replaces the REST API server settings. The listen address
// derived from RestAPIPort is kept unless cfg sets one.
func WithAPIConfig(cfg api.Config) Option {
	return func(r *Relay) {
		if cfg.ListenAddr == "" {
			cfg.ListenAddr = r.apiCfg.ListenAddr
		}
		r.apiCfg = cfg
	}
}

// WithMetricsRoute toggles /metrics on the REST API.
func WithMetricsRoute(enabled bool) Option {
	return func(r *Relay) { r.metricsRoute = enabled }
}

// New creates a relay for the contract at cfg.RelayAddress.
func New(cfg relay.Config, registry *guest.Registry, res resolver.Resolver, log zerolog.Logger, opts ...Option) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	binding, err := NewBinding(cfg.RelayAddress)
	if err != nil {
		return nil, err
	}

	apiCfg := api.DefaultConfig()
	apiCfg.ListenAddr = ":" + cfg.RestAPIPort

	r := &Relay{
		cfg:          cfg,
		registry:     registry,
		resolver:     res,
		binding:      binding,
		dial:         DialEthClient,
		apiCfg:       apiCfg,
		metricsRoute: true,
		log:          log.With().Str("component", "eth-relay").Logger(),
		metrics:      newRelayMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Stats returns the current progress counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	lastTx := r.lastTx
	r.mu.Unlock()

	st := Stats{
		Connected: r.connected.Load(),
		Processed: r.processed.Load(),
		Failed:    r.failed.Load(),
		LastBlock: r.lastBlock.Load(),
	}
	if lastTx != (common.Hash{}) {
		st.LastTx = lastTx.Hex()
	}
	return st
}

// Run serves the REST API (when enabled) and relays callback requests until
// ctx is canceled. It fails once the node cannot be reached within the
// retry policy.
func (r *Relay) Run(ctx context.Context, client relay.ClientConfig) error {
	signer, err := SignerFromHex(client.ChainID, client.PrivateKey)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.RestAPI {
		srv := r.newAPIServer()
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				return fmt.Errorf("rest api: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return r.watch(gctx, client, signer)
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watch subscribes to callback requests and reconnects whenever the
// subscription drops. Every reconnect gets the full retry policy.
func (r *Relay) watch(ctx context.Context, client relay.ClientConfig, signer Signer) error {
	for {
		w, err := r.connect(ctx, client)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = r.serve(ctx, w, client.ChainID, signer)
		w.sub.Unsubscribe()
		w.conn.Close()
		r.setConnected(false)

		if ctx.Err() != nil {
			return nil
		}
		r.metrics.reconnects.Inc()
		r.log.Warn().Err(err).Dur("retry_interval", client.Retry.Interval).Msg("Log subscription dropped, reconnecting")

		timer := time.NewTimer(client.Retry.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// watcher is an established log subscription.
type watcher struct {
	conn EthClient
	sub  ethereum.Subscription
	logs chan types.Log
}

// connect dials the node and subscribes to callback requests. A failed dial
// and a failed subscription each use up one attempt of client.Retry.
func (r *Relay) connect(ctx context.Context, client relay.ClientConfig) (*watcher, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{r.binding.Address()},
		Topics:    [][]common.Hash{{r.binding.CallbackRequestTopic()}},
	}

	var w *watcher
	err := client.Retry.Do(ctx, func(ctx context.Context, attempt uint64) error {
		conn, err := dialNode(ctx, client, r.dial, attempt, r.log)
		if err != nil {
			return err
		}

		logs := make(chan types.Log, 64)
		sub, err := conn.SubscribeFilterLogs(ctx, query, logs)
		if err != nil {
			conn.Close()
			r.log.Warn().Err(err).
				Uint64("attempt", attempt+1).
				Uint64("max_attempts", client.Retry.MaxAttempts()).
				Msg("Failed to subscribe to callback requests")
			return fmt.Errorf("subscribe to callback requests: %w", err)
		}
		w = &watcher{conn: conn, sub: sub, logs: logs}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", client.NodeURL, err)
	}
	return w, nil
}

// serve handles logs from one subscription until it fails or ctx ends.
func (r *Relay) serve(ctx context.Context, w *watcher, chainID uint64, signer Signer) error {
	r.setConnected(true)
	r.log.Info().
		Str("relay_address", r.binding.Address().Hex()).
		Str("sender", signer.Address().Hex()).
		Bool("dev_mode", r.cfg.DevMode).
		Msg("Watching callback requests")

	submitter := NewSubmitter(w.conn, signer, r.binding, chainID, r.log)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-w.sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case lg := <-w.logs:
			r.handle(ctx, submitter, lg)
		}
	}
}

// handle processes one request. Failures are logged and counted; they never
// stop the relay.
func (r *Relay) handle(ctx context.Context, submitter *Submitter, lg types.Log) {
	if lg.Removed {
		return
	}
	log := r.log.With().Str("tx_hash", lg.TxHash.Hex()).Uint64("block", lg.BlockNumber).Logger()

	tx, err := r.process(ctx, submitter, lg, log)
	if err != nil {
		r.failed.Add(1)
		log.Error().Err(err).Msg("Callback request failed")
		return
	}

	r.processed.Add(1)
	r.mu.Lock()
	r.lastTx = tx.Hash()
	r.mu.Unlock()
}

func (r *Relay) process(ctx context.Context, submitter *Submitter, lg types.Log, log zerolog.Logger) (*types.Transaction, error) {
	req, err := r.binding.ParseCallbackRequest(lg)
	if err != nil {
		r.metrics.callbacks.WithLabelValues("invalid").Inc()
		return nil, err
	}
	r.lastBlock.Store(req.BlockNumber)
	r.metrics.lastBlock.Set(float64(req.BlockNumber))

	id, err := req.ImageIDOf()
	if err != nil {
		r.metrics.callbacks.WithLabelValues("invalid").Inc()
		return nil, err
	}
	entry, err := r.registry.Lookup(id)
	if err != nil {
		r.metrics.callbacks.WithLabelValues("unknown_image").Inc()
		return nil, err
	}
	log.Info().
		Str("guest", entry.Name).
		Str("account", req.Account.Hex()).
		Str("callback_contract", req.CallbackContract.Hex()).
		Int("input_bytes", len(req.Input)).
		Msg("Callback request received")

	out, err := r.resolver.Resolve(ctx, req.Input, entry, r.cfg.DevMode)
	if err != nil {
		r.metrics.callbacks.WithLabelValues("resolve_failed").Inc()
		return nil, fmt.Errorf("resolve %s: %w", entry.Name, err)
	}
	cb, err := BuildCallback(req, out)
	if err != nil {
		r.metrics.callbacks.WithLabelValues("encode_failed").Inc()
		return nil, err
	}
	tx, err := submitter.Submit(ctx, cb)
	if err != nil {
		r.metrics.callbacks.WithLabelValues("submit_failed").Inc()
		return nil, err
	}

	r.metrics.callbacks.WithLabelValues("submitted").Inc()
	r.metrics.payloadSize.Observe(float64(len(cb.Payload)))
	return tx, nil
}

func (r *Relay) setConnected(v bool) {
	r.connected.Store(v)
	if v {
		r.metrics.connected.Set(1)
	} else {
		r.metrics.connected.Set(0)
	}
}

var _ relay.Relayer = (*Relay)(nil)
