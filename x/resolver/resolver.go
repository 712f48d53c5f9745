package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/compose-network/bonsai-relay/x/bonsai"
	"github.com/compose-network/bonsai-relay/x/calldata"
	"github.com/compose-network/bonsai-relay/x/guest"
)

// Resolver runs a guest on an input and returns its output.
type Resolver interface {
	Resolve(ctx context.Context, input []byte, entry guest.Entry, devMode bool) (Output, error)
}

// Config controls job polling.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// DefaultConfig polls every 5s and gives up after 30 minutes.
func DefaultConfig() Config {
	return Config{PollInterval: 5 * time.Second, Timeout: 30 * time.Minute}
}

// DecodeInput parses a hex encoded guest input. The 0x prefix is optional.
func DecodeInput(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if s == "" {
		return []byte{}, nil
	}
	b, err := hexutil.Decode("0x" + s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return b, nil
}

// Bonsai resolves outputs through the proving service. In dev mode the
// session is created execute-only and its journal is returned; otherwise the
// session is proven and wrapped into a Groth16 SNARK.
type Bonsai struct {
	client  bonsai.Client
	cfg     Config
	log     zerolog.Logger
	metrics *resolverMetrics
}

// NewBonsai creates a resolver backed by client. Zero config values fall
// back to DefaultConfig.
func NewBonsai(client bonsai.Client, cfg Config, log zerolog.Logger) *Bonsai {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Bonsai{
		client:  client,
		cfg:     cfg,
		log:     log.With().Str("component", "resolver").Logger(),
		metrics: newResolverMetrics(),
	}
}

// Resolve implements Resolver.
func (r *Bonsai) Resolve(ctx context.Context, input []byte, entry guest.Entry, devMode bool) (out Output, err error) {
	mode := "prove"
	if devMode {
		mode = "execute"
	}
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		r.metrics.observe(mode, result, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	imageID := entry.ImageID.Hex()
	log := r.log.With().Str("guest", entry.Name).Str("image_id", imageID).Str("mode", mode).Logger()

	if err := r.client.UploadImage(ctx, imageID, entry.ELF); err != nil && !errors.Is(err, bonsai.ErrImageExists) {
		return nil, fmt.Errorf("upload image %s: %w", entry.Name, err)
	}
	inputID, err := r.client.UploadInput(ctx, input)
	if err != nil {
		return nil, err
	}
	sessionID, err := r.client.CreateSession(ctx, bonsai.SessionCreate{
		Image:       imageID,
		Input:       inputID,
		ExecuteOnly: devMode,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("session_id", sessionID).Msg("Session started")

	if err := r.waitSession(ctx, sessionID); err != nil {
		return nil, err
	}

	if devMode {
		journal, err := r.client.ExecOnlyJournal(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		log.Info().Int("journal_bytes", len(journal)).Msg("Execution finished")
		return ExecutionOutput{Journal: journal}, nil
	}

	snarkID, err := r.client.CreateSnark(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	receipt, err := r.waitSnark(ctx, snarkID)
	if err != nil {
		return nil, err
	}
	if len(receipt.PostStateDigest) != common.HashLength {
		return nil, fmt.Errorf("snark %s: post state digest has %d bytes, want %d",
			snarkID, len(receipt.PostStateDigest), common.HashLength)
	}

	log.Info().Str("snark_id", snarkID).Int("journal_bytes", len(receipt.Journal)).Msg("Proof ready")
	return FullOutput{
		Journal:         []byte(receipt.Journal),
		PostStateDigest: common.BytesToHash(receipt.PostStateDigest),
		Proof: calldata.SnarkProof{
			A: receipt.Snark.A,
			B: receipt.Snark.B,
			C: receipt.Snark.C,
		},
	}, nil
}

func (r *Bonsai) waitSession(ctx context.Context, sessionID string) error {
	return r.poll(ctx, func(ctx context.Context) (bool, error) {
		st, err := r.client.SessionStatus(ctx, sessionID)
		if err != nil {
			return false, err
		}
		if !bonsai.IsTerminal(st.Status) {
			r.log.Debug().Str("session_id", sessionID).Str("status", st.Status).Msg("Session pending")
			return false, nil
		}
		if st.Status != bonsai.StatusSucceeded {
			return false, fmt.Errorf("session %s %s: %s", sessionID, st.Status, st.Error())
		}
		return true, nil
	})
}

func (r *Bonsai) waitSnark(ctx context.Context, snarkID string) (*bonsai.SnarkReceipt, error) {
	var receipt *bonsai.SnarkReceipt
	err := r.poll(ctx, func(ctx context.Context) (bool, error) {
		st, err := r.client.SnarkStatus(ctx, snarkID)
		if err != nil {
			return false, err
		}
		if !bonsai.IsTerminal(st.Status) {
			r.log.Debug().Str("snark_id", snarkID).Str("status", st.Status).Msg("Snark pending")
			return false, nil
		}
		if st.Status != bonsai.StatusSucceeded {
			return false, fmt.Errorf("snark %s %s: %s", snarkID, st.Status, st.Error())
		}
		if st.Output == nil {
			return false, fmt.Errorf("snark %s succeeded without output", snarkID)
		}
		receipt = st.Output
		return true, nil
	})
	return receipt, err
}

// poll calls check until it reports done, fails, or ctx ends.
func (r *Bonsai) poll(ctx context.Context, check func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ Resolver = (*Bonsai)(nil)
