package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/bonsai-relay/x/bonsai"
	"github.com/compose-network/bonsai-relay/x/bonsai/bonsaitest"
	"github.com/compose-network/bonsai-relay/x/guest"
)

func testRegistry(t *testing.T) *guest.Registry {
	t.Helper()
	reg, err := guest.NewRegistry(
		guest.Entry{Name: "A", ImageID: guest.ImageID{1}, ELF: []byte("a")},
		guest.Entry{Name: "B", ImageID: guest.ImageID{2}, ELF: []byte("b")},
		guest.Entry{Name: "C", ImageID: guest.ImageID{3}, ELF: []byte("c")},
	)
	require.NoError(t, err)
	return reg
}

func TestProvision_AllInRegistryOrder(t *testing.T) {
	fake := bonsaitest.New()
	p := New(testRegistry(t), fake, zerolog.Nop())

	ids, err := p.Provision(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []guest.ImageID{{1}, {2}, {3}}, ids)

	uploads := fake.Uploads()
	require.Len(t, uploads, 3)
	for i, want := range []guest.ImageID{{1}, {2}, {3}} {
		require.Equal(t, want.Hex(), uploads[i].ImageID)
	}
	require.Equal(t, []byte("b"), uploads[1].ELF)
}

func TestProvision_Idempotent(t *testing.T) {
	fake := bonsaitest.New()
	p := New(testRegistry(t), fake, zerolog.Nop())

	first, err := p.ProvisionAll(context.Background())
	require.NoError(t, err)
	second, err := p.ProvisionAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, fake.Uploads(), 6)
}

func TestProvision_SingleTarget(t *testing.T) {
	fake := bonsaitest.New()
	p := New(testRegistry(t), fake, zerolog.Nop())

	ids, err := p.Provision(context.Background(), "B")
	require.NoError(t, err)
	require.Equal(t, []guest.ImageID{{2}}, ids)
	require.Len(t, fake.Uploads(), 1)
}

func TestProvision_UnknownGuest(t *testing.T) {
	fake := bonsaitest.New()
	p := New(testRegistry(t), fake, zerolog.Nop())

	_, err := p.Provision(context.Background(), "Z")
	require.ErrorIs(t, err, guest.ErrUnknownGuest)
	require.Empty(t, fake.Uploads())
}

func TestProvision_AbortsOnFailure(t *testing.T) {
	boom := errors.New("service unavailable")
	fake := bonsaitest.New()
	fake.UploadErr = func(call int, _ string) error {
		if call == 2 {
			return boom
		}
		return nil
	}
	p := New(testRegistry(t), fake, zerolog.Nop())

	ids, err := p.ProvisionAll(context.Background())
	require.ErrorIs(t, err, ErrUpload)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, bonsai.ErrImageExists)
	require.Nil(t, ids)
	require.Len(t, fake.Uploads(), 2)
	require.False(t, fake.Stored(guest.ImageID{3}.Hex()))
}

func TestProvision_Canceled(t *testing.T) {
	fake := bonsaitest.New()
	p := New(testRegistry(t), fake, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProvisionAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fake.Uploads())
}
