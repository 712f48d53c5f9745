// Package relay supervises the long-running relay together with image
// provisioning.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/compose-network/bonsai-relay/x/guest"
)

// DefaultReadyTimeout bounds the readiness probe.
const DefaultReadyTimeout = time.Second

// Relayer runs until ctx is canceled or the relay fails.
type Relayer interface {
	Run(ctx context.Context, client ClientConfig) error
}

// Provisioner uploads every known guest image.
type Provisioner interface {
	ProvisionAll(ctx context.Context) ([]guest.ImageID, error)
}

// Pinger reports whether a dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Supervisor starts the relay, provisions all images next to it and waits
// for the relay to finish.
type Supervisor struct {
	relayer      Relayer
	client       ClientConfig
	provisioner  Provisioner
	probe        Pinger
	readyTimeout time.Duration
	probeEvery   time.Duration
	log          zerolog.Logger
}

// SupervisorOption customizes a Supervisor.
type SupervisorOption func(*Supervisor)

// WithReadinessProbe makes the supervisor wait for p before provisioning,
// for at most timeout. Provisioning starts anyway once timeout expires.
func WithReadinessProbe(p Pinger, timeout time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.probe = p
		if timeout > 0 {
			s.readyTimeout = timeout
		}
	}
}

// NewSupervisor wires a supervisor. client is handed to the relay as is.
func NewSupervisor(
	relayer Relayer,
	client ClientConfig,
	provisioner Provisioner,
	log zerolog.Logger,
	opts ...SupervisorOption,
) *Supervisor {
	s := &Supervisor{
		relayer:      relayer,
		client:       client,
		provisioner:  provisioner,
		readyTimeout: DefaultReadyTimeout,
		probeEvery:   100 * time.Millisecond,
		log:          log.With().Str("component", "supervisor").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run spawns the relay, provisions every image once the proving service is
// reachable, and joins the relay. A provisioning failure stops the relay and
// is returned. Cancelling ctx shuts everything down and returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info().
			Str("eth_node", s.client.NodeURL).
			Uint64("chain_id", s.client.ChainID).
			Uint64("retry_attempts", s.client.Retry.Attempts).
			Dur("retry_interval", s.client.Retry.Interval).
			Msg("Starting relay")
		if err := s.relayer.Run(gctx, s.client); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		s.log.Info().Msg("Relay stopped")
		return nil
	})

	g.Go(func() error {
		s.waitReady(gctx)
		ids, err := s.provisioner.ProvisionAll(gctx)
		if err != nil {
			return fmt.Errorf("provision images: %w", err)
		}
		s.log.Info().Int("images", len(ids)).Msg("Images provisioned")
		return nil
	})

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		s.log.Info().Msg("Supervisor shut down")
		return nil
	}
	return err
}

// waitReady polls the probe until it answers or the timeout expires.
func (s *Supervisor) waitReady(ctx context.Context) {
	if s.probe == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(s.probeEvery)
	defer ticker.Stop()

	for {
		err := s.probe.Ping(ctx)
		if err == nil {
			s.log.Debug().Msg("Proving service ready")
			return
		}
		select {
		case <-ctx.Done():
			s.log.Warn().Err(err).Dur("timeout", s.readyTimeout).Msg("Proving service not ready, provisioning anyway")
			return
		case <-ticker.C:
		}
	}
}
