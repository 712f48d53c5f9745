// Package provision uploads guest images to the proving service.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/bonsai-relay/metrics"
	"github.com/compose-network/bonsai-relay/x/bonsai"
	"github.com/compose-network/bonsai-relay/x/guest"
)

// ErrUpload wraps any upload failure other than an already stored image.
var ErrUpload = errors.New("image upload failed")

// Provisioner makes sure guest images are present on the proving service.
type Provisioner struct {
	registry *guest.Registry
	uploader bonsai.ImageUploader
	log      zerolog.Logger
	uploads  *prometheus.CounterVec
}

// New creates a Provisioner over registry.
func New(registry *guest.Registry, uploader bonsai.ImageUploader, log zerolog.Logger) *Provisioner {
	reg := metrics.NewComponentRegistry("bonsai_relay", "provision")
	return &Provisioner{
		registry: registry,
		uploader: uploader,
		log:      log.With().Str("component", "provisioner").Logger(),
		uploads: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Image uploads by result",
		}, []string{"result"}),
	}
}

// ProvisionAll uploads every registered guest in registry order.
func (p *Provisioner) ProvisionAll(ctx context.Context) ([]guest.ImageID, error) {
	return p.upload(ctx, p.registry.Entries())
}

// Provision uploads the guest called target, or every guest when target is
// empty. The returned ids follow resolution order.
func (p *Provisioner) Provision(ctx context.Context, target string) ([]guest.ImageID, error) {
	if target == "" {
		return p.ProvisionAll(ctx)
	}
	entry, err := p.registry.Resolve(target)
	if err != nil {
		return nil, err
	}
	return p.upload(ctx, []guest.Entry{entry})
}

// upload runs sequentially and stops at the first failure.
func (p *Provisioner) upload(ctx context.Context, entries []guest.Entry) ([]guest.ImageID, error) {
	ids := make([]guest.ImageID, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := entry.ImageID.Hex()
		err := p.uploader.UploadImage(ctx, id, entry.ELF)
		switch {
		case err == nil:
			p.uploads.WithLabelValues("uploaded").Inc()
			p.log.Info().Str("guest", entry.Name).Str("image_id", id).Msg("Image uploaded")
		case errors.Is(err, bonsai.ErrImageExists):
			p.uploads.WithLabelValues("exists").Inc()
			p.log.Debug().Str("guest", entry.Name).Str("image_id", id).Msg("Image already present")
		default:
			p.uploads.WithLabelValues("failed").Inc()
			p.log.Error().Err(err).Str("guest", entry.Name).Str("image_id", id).Msg("Image upload failed")
			return nil, fmt.Errorf("%w: %s (%s): %w", ErrUpload, entry.Name, id, err)
		}
		ids = append(ids, entry.ImageID)
	}
	return ids, nil
}
