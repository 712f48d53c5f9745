// Package bonsaitest provides an in-memory bonsai.Client for tests.
package bonsaitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/compose-network/bonsai-relay/x/bonsai"
)

// Upload records one UploadImage call.
type Upload struct {
	ImageID string
	ELF     []byte
}

// Fake is a scripted bonsai.Client. Images are stored in memory and a second
// upload of the same id yields bonsai.ErrImageExists. Sessions and SNARK jobs
// succeed immediately with the configured Journal and Receipt.
type Fake struct {
	mu sync.Mutex

	// UploadErr, when set, is consulted before every image upload; a non-nil
	// return value fails that upload.
	UploadErr func(call int, imageID string) error
	// Journal is returned for execute-only sessions.
	Journal []byte
	// Receipt is returned by finished SNARK jobs.
	Receipt *bonsai.SnarkReceipt
	// SessionResult overrides the terminal session status.
	SessionResult string
	// PingErr is returned by Ping.
	PingErr error

	images   map[string][]byte
	uploads  []Upload
	inputs   map[string][]byte
	sessions map[string]bonsai.SessionCreate
	snarks   map[string]string
	polls    int
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		images:   make(map[string][]byte),
		inputs:   make(map[string][]byte),
		sessions: make(map[string]bonsai.SessionCreate),
		snarks:   make(map[string]string),
	}
}

// Uploads returns every UploadImage call in order, including failed and
// duplicate ones.
func (f *Fake) Uploads() []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Upload(nil), f.uploads...)
}

// Stored reports whether an image with id has been stored.
func (f *Fake) Stored(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.images[id]
	return ok
}

// Input returns a previously uploaded input.
func (f *Fake) Input(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[id]
}

// Sessions returns the requests of all created sessions.
func (f *Fake) Sessions() []bonsai.SessionCreate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bonsai.SessionCreate, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

// UploadImage implements bonsai.Client.
func (f *Fake) UploadImage(_ context.Context, imageID string, elf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads = append(f.uploads, Upload{ImageID: imageID, ELF: elf})
	if f.UploadErr != nil {
		if err := f.UploadErr(len(f.uploads), imageID); err != nil {
			return err
		}
	}
	if _, ok := f.images[imageID]; ok {
		return bonsai.ErrImageExists
	}
	f.images[imageID] = elf
	return nil
}

// UploadInput implements bonsai.Client.
func (f *Fake) UploadInput(_ context.Context, input []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.inputs[id] = input
	return id, nil
}

// CreateSession implements bonsai.Client.
func (f *Fake) CreateSession(_ context.Context, req bonsai.SessionCreate) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.images[req.Image]; !ok {
		return "", fmt.Errorf("image %s not found", req.Image)
	}
	if _, ok := f.inputs[req.Input]; !ok {
		return "", fmt.Errorf("input %s not found", req.Input)
	}
	id := uuid.NewString()
	f.sessions[id] = req
	return id, nil
}

// SessionStatus implements bonsai.Client. The first poll reports RUNNING.
func (f *Fake) SessionStatus(_ context.Context, sessionID string) (bonsai.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return bonsai.SessionStatus{}, fmt.Errorf("session %s not found", sessionID)
	}
	f.polls++
	if f.polls == 1 {
		return bonsai.SessionStatus{Status: bonsai.StatusRunning}, nil
	}
	if f.SessionResult != "" && f.SessionResult != bonsai.StatusSucceeded {
		msg := "session " + f.SessionResult
		return bonsai.SessionStatus{Status: f.SessionResult, ErrorMsg: &msg}, nil
	}
	return bonsai.SessionStatus{Status: bonsai.StatusSucceeded}, nil
}

// ExecOnlyJournal implements bonsai.Client.
func (f *Fake) ExecOnlyJournal(_ context.Context, sessionID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if !s.ExecuteOnly {
		return nil, fmt.Errorf("session %s is not execute-only", sessionID)
	}
	return f.Journal, nil
}

// CreateSnark implements bonsai.Client.
func (f *Fake) CreateSnark(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("session %s not found", sessionID)
	}
	if s.ExecuteOnly {
		return "", fmt.Errorf("session %s is execute-only", sessionID)
	}
	id := uuid.NewString()
	f.snarks[id] = sessionID
	return id, nil
}

// SnarkStatus implements bonsai.Client.
func (f *Fake) SnarkStatus(_ context.Context, snarkID string) (bonsai.SnarkStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snarks[snarkID]; !ok {
		return bonsai.SnarkStatus{}, fmt.Errorf("snark %s not found", snarkID)
	}
	if f.Receipt == nil {
		msg := "no receipt configured"
		return bonsai.SnarkStatus{Status: bonsai.StatusFailed, ErrorMsg: &msg}, nil
	}
	receipt := *f.Receipt
	return bonsai.SnarkStatus{Status: bonsai.StatusSucceeded, Output: &receipt}, nil
}

// Ping implements bonsai.Client.
func (f *Fake) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PingErr
}

var _ bonsai.Client = (*Fake)(nil)
