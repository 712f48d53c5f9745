package bonsai

import (
	"context"
	"errors"
)

// ErrImageExists is returned by UploadImage when the service already holds
// an image with the given id. Callers treat it as a successful no-op.
var ErrImageExists = errors.New("image id already exists")

// ImageUploader uploads guest images.
type ImageUploader interface {
	UploadImage(ctx context.Context, imageID string, elf []byte) error
}

// Client is the subset of the proving-service API used by the relay.
type Client interface {
	ImageUploader

	// UploadInput stores an execution input and returns its id.
	UploadInput(ctx context.Context, input []byte) (string, error)
	// CreateSession starts executing (and, unless executeOnly, proving) an image.
	CreateSession(ctx context.Context, req SessionCreate) (string, error)
	SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
	// ExecOnlyJournal returns the journal of a finished execute-only session.
	ExecOnlyJournal(ctx context.Context, sessionID string) ([]byte, error)
	// CreateSnark starts a Groth16 wrapping job for a finished session.
	CreateSnark(ctx context.Context, sessionID string) (string, error)
	SnarkStatus(ctx context.Context, snarkID string) (SnarkStatus, error)
	// Ping checks that the service answers HTTP requests.
	Ping(ctx context.Context) error
}
