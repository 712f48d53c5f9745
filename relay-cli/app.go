package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/compose-network/bonsai-relay/relay-cli/config"
	"github.com/compose-network/bonsai-relay/x/bonsai"
	"github.com/compose-network/bonsai-relay/x/bonsai/rest"
	"github.com/compose-network/bonsai-relay/x/calldata"
	"github.com/compose-network/bonsai-relay/x/guest"
	"github.com/compose-network/bonsai-relay/x/provision"
	"github.com/compose-network/bonsai-relay/x/relay"
	"github.com/compose-network/bonsai-relay/x/relay/ethrelay"
	"github.com/compose-network/bonsai-relay/x/resolver"
)

// App dispatches the query, upload and run commands.
type App struct {
	cfg *config.Config
	log zerolog.Logger
	out io.Writer

	registry    *guest.Registry
	client      bonsai.Client
	resolver    resolver.Resolver
	provisioner *provision.Provisioner
	relayer     relay.Relayer
}

// AppOption customizes an App.
type AppOption func(*App)

// WithOutput redirects the result line, stdout by default.
func WithOutput(w io.Writer) AppOption {
	return func(a *App) { a.out = w }
}

// WithRegistry replaces the manifest-loaded guest registry.
func WithRegistry(r *guest.Registry) AppOption {
	return func(a *App) { a.registry = r }
}

// WithBonsaiClient replaces the REST proving-service client.
func WithBonsaiClient(c bonsai.Client) AppOption {
	return func(a *App) { a.client = c }
}

// WithResolver replaces the proving-service backed resolver.
func WithResolver(r resolver.Resolver) AppOption {
	return func(a *App) { a.resolver = r }
}

// WithRelayer replaces the Ethereum relay used by Run.
func WithRelayer(r relay.Relayer) AppOption {
	return func(a *App) { a.relayer = r }
}

// NewApp wires the collaborators described by cfg.
func NewApp(cfg *config.Config, log zerolog.Logger, opts ...AppOption) (*App, error) {
	app := &App{
		cfg: cfg,
		log: log.With().Str("component", "app").Logger(),
		out: os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}

	if err := app.initialize(log); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return app, nil
}

func (a *App) initialize(log zerolog.Logger) error {
	if a.registry == nil {
		reg, err := guest.LoadManifest(a.cfg.Guests.Manifest)
		if err != nil {
			return err
		}
		a.registry = reg
	}

	if a.client == nil {
		client, err := rest.NewHTTPClient(a.cfg.Bonsai.APIURL, a.cfg.Bonsai.APIKey, log,
			rest.WithVersion(a.cfg.Bonsai.Version))
		if err != nil {
			return err
		}
		a.client = client
	}

	if a.resolver == nil {
		a.resolver = resolver.NewBonsai(a.client, resolver.Config{
			PollInterval: a.cfg.Bonsai.PollInterval,
			Timeout:      a.cfg.Bonsai.Timeout,
		}, log)
	}

	a.provisioner = provision.New(a.registry, a.client, log)

	a.log.Debug().
		Strs("guests", a.registry.Names()).
		Str("bonsai_url", a.cfg.Bonsai.APIURL).
		Bool("dev_mode", a.cfg.DevMode).
		Msg("App initialized")
	return nil
}

// Query prints the ABI encoding of the guest's output for input, or of its
// image id when input is nil.
func (a *App) Query(ctx context.Context, guestName string, input *string) error {
	entry, err := a.registry.Resolve(guestName)
	if err != nil {
		return err
	}

	if input == nil {
		return a.writeTokens(calldata.ImageIDToken(entry.ImageID))
	}

	raw, err := resolver.DecodeInput(*input)
	if err != nil {
		return err
	}
	out, err := a.resolver.Resolve(ctx, raw, entry, a.cfg.DevMode)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", entry.Name, err)
	}
	tokens, err := resolver.EncodeQueryOutput(a.cfg.DevMode, out)
	if err != nil {
		return err
	}
	return a.writeTokens(tokens...)
}

// Upload provisions one guest, or all of them when guestName is empty, and
// prints the uploaded image ids as a bytes32[].
func (a *App) Upload(ctx context.Context, guestName string) error {
	ids, err := a.provisioner.Provision(ctx, guestName)
	if err != nil {
		return err
	}
	return a.writeTokens(calldata.ImageIDsToken(ids))
}

// Run starts the relay next to image provisioning and blocks until it stops
// or a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	if err := a.cfg.ValidateRun(); err != nil {
		return err
	}

	relayer := a.relayer
	if relayer == nil {
		r, err := ethrelay.New(a.cfg.RelayConfig(), a.registry, a.resolver, a.log,
			ethrelay.WithMetricsRoute(a.cfg.Metrics.Enabled))
		if err != nil {
			return fmt.Errorf("failed to create relay: %w", err)
		}
		relayer = r
	}

	sup := relay.NewSupervisor(relayer, a.cfg.ClientConfig(), a.provisioner, a.log,
		relay.WithReadinessProbe(a.client, a.cfg.Relay.ReadyTimeout))

	return a.runWithGracefulShutdown(ctx, sup.Run)
}

// runWithGracefulShutdown cancels run's context on SIGINT or SIGTERM.
func (a *App) runWithGracefulShutdown(ctx context.Context, run func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return run(ctx)
}

// writeTokens prints the tokens' ABI encoding as lowercase hex with no
// trailing newline.
func (a *App) writeTokens(tokens ...calldata.Token) error {
	encoded, err := calldata.EncodeHex(tokens...)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(a.out)
	if _, err := fmt.Fprint(w, encoded); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush stdout buffer: %w", err)
	}
	return nil
}
