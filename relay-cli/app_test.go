package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/bonsai-relay/relay-cli/config"
	"github.com/compose-network/bonsai-relay/x/bonsai"
	"github.com/compose-network/bonsai-relay/x/bonsai/bonsaitest"
	"github.com/compose-network/bonsai-relay/x/guest"
	"github.com/compose-network/bonsai-relay/x/relay"
	"github.com/compose-network/bonsai-relay/x/resolver"
)

var (
	votesGuest = guest.Entry{
		Name:    "FINALIZE_VOTES",
		ImageID: guest.ImageID{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88},
		ELF:     []byte{0x7f, 'E', 'L', 'F', 1},
	}
	fibGuest = guest.Entry{
		Name:    "FIBONACCI",
		ImageID: guest.ImageID{1, 1, 2, 3, 5, 8, 13, 21},
		ELF:     []byte{0x7f, 'E', 'L', 'F', 2},
	}
)

type testApp struct {
	app  *App
	fake *bonsaitest.Fake
	out  *bytes.Buffer
}

func newTestApp(t *testing.T, devMode bool, opts ...AppOption) *testApp {
	t.Helper()

	reg, err := guest.NewRegistry(votesGuest, fibGuest)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.DevMode = devMode
	cfg.Relay.Address = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	cfg.Relay.ReadyTimeout = 10 * time.Millisecond

	fake := bonsaitest.New()
	out := &bytes.Buffer{}
	res := resolver.NewBonsai(fake, resolver.Config{PollInterval: time.Millisecond, Timeout: 5 * time.Second}, zerolog.Nop())

	base := []AppOption{WithRegistry(reg), WithBonsaiClient(fake), WithResolver(res), WithOutput(out)}
	app, err := NewApp(cfg, zerolog.Nop(), append(base, opts...)...)
	require.NoError(t, err)

	return &testApp{app: app, fake: fake, out: out}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustType(t *testing.T, s string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(s, "", nil)
	require.NoError(t, err)
	return typ
}

// outputLine returns the printed hex output decoded to bytes.
func outputLine(t *testing.T, out *bytes.Buffer) []byte {
	t.Helper()
	line := out.String()
	require.NotContains(t, line, "\n")
	require.Equal(t, strings.ToLower(line), line)

	b, err := hex.DecodeString(line)
	require.NoError(t, err)
	return b
}

func unpack(t *testing.T, data []byte, types ...string) []interface{} {
	t.Helper()
	args := make(abi.Arguments, len(types))
	for i, s := range types {
		args[i] = abi.Argument{Type: mustType(t, s)}
	}
	values, err := args.Unpack(data)
	require.NoError(t, err)
	return values
}

func TestApp_QueryImageID(t *testing.T) {
	ta := newTestApp(t, false)

	require.NoError(t, ta.app.Query(testContext(t), "FINALIZE_VOTES", nil))

	got := outputLine(t, ta.out)
	require.Len(t, got, 32)
	want := votesGuest.ImageID.Bytes()
	require.Equal(t, want[:], got)
	require.Equal(t, hex.EncodeToString(want[:]), ta.out.String())
	require.Empty(t, ta.fake.Uploads())
}

func TestApp_QueryDevMode(t *testing.T) {
	ta := newTestApp(t, true)
	ta.fake.Journal = []byte("hello")

	input := "0xcafe"
	require.NoError(t, ta.app.Query(testContext(t), "FIBONACCI", &input))

	values := unpack(t, outputLine(t, ta.out), "bytes")
	require.Equal(t, []byte("hello"), values[0])

	sessions := ta.fake.Sessions()
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].ExecuteOnly)
	require.Equal(t, []byte{0xca, 0xfe}, ta.fake.Input(sessions[0].Input))
}

func TestApp_QueryProveMode(t *testing.T) {
	ta := newTestApp(t, false)
	digest := common.HexToHash("0xabcdef")
	ta.fake.Receipt = &bonsai.SnarkReceipt{
		Snark: bonsai.SnarkProof{
			A: []string{"0x1", "0x2"},
			B: [][]string{{"0x3", "0x4"}, {"0x5", "0x6"}},
			C: []string{"0x7", "0x8"},
		},
		PostStateDigest: digest.Bytes(),
		Journal:         []byte("journal"),
	}

	input := ""
	require.NoError(t, ta.app.Query(testContext(t), "FINALIZE_VOTES", &input))

	values := unpack(t, outputLine(t, ta.out), "bytes", "bytes32", "bytes")
	require.Equal(t, []byte("journal"), values[0])
	require.Equal(t, [32]byte(digest), values[1])

	seal := unpack(t, values[2].([]byte), "uint256[2]", "uint256[2][2]", "uint256[2]")
	require.Equal(t, [2]*big.Int{big.NewInt(1), big.NewInt(2)}, seal[0])
	require.Equal(t, [2][2]*big.Int{
		{big.NewInt(3), big.NewInt(4)},
		{big.NewInt(5), big.NewInt(6)},
	}, seal[1])
	require.Equal(t, [2]*big.Int{big.NewInt(7), big.NewInt(8)}, seal[2])
}

func TestApp_QueryMalformedProof(t *testing.T) {
	ta := newTestApp(t, false)
	ta.fake.Receipt = &bonsai.SnarkReceipt{
		Snark: bonsai.SnarkProof{
			A: []string{"0x1"},
			B: [][]string{{"0x3", "0x4"}, {"0x5", "0x6"}},
			C: []string{"0x7", "0x8"},
		},
		PostStateDigest: common.Hash{}.Bytes(),
	}

	input := "00"
	err := ta.app.Query(testContext(t), "FINALIZE_VOTES", &input)
	require.Error(t, err)
	require.Empty(t, ta.out.String())
}

func TestApp_QueryUnknownGuest(t *testing.T) {
	ta := newTestApp(t, false)

	err := ta.app.Query(testContext(t), "NOPE", nil)
	require.ErrorIs(t, err, guest.ErrUnknownGuest)
	require.Empty(t, ta.out.String())
}

func TestApp_QueryBadInput(t *testing.T) {
	ta := newTestApp(t, true)

	input := "0xzz"
	require.Error(t, ta.app.Query(testContext(t), "FIBONACCI", &input))
	require.Empty(t, ta.fake.Sessions())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestApp_QueryFlushFailure(t *testing.T) {
	ta := newTestApp(t, false, WithOutput(failingWriter{}))

	err := ta.app.Query(testContext(t), "FINALIZE_VOTES", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to flush stdout buffer")
}

func TestApp_UploadAll(t *testing.T) {
	ta := newTestApp(t, false)

	require.NoError(t, ta.app.Upload(testContext(t), ""))

	values := unpack(t, outputLine(t, ta.out), "bytes32[]")
	require.Equal(t, [][32]byte{votesGuest.ImageID.Bytes(), fibGuest.ImageID.Bytes()}, values[0])
	require.True(t, ta.fake.Stored(votesGuest.ImageID.Hex()))
	require.True(t, ta.fake.Stored(fibGuest.ImageID.Hex()))

	// Uploading again is idempotent.
	ta.out.Reset()
	require.NoError(t, ta.app.Upload(testContext(t), ""))
	values = unpack(t, outputLine(t, ta.out), "bytes32[]")
	require.Len(t, values[0], 2)
}

func TestApp_UploadOne(t *testing.T) {
	ta := newTestApp(t, false)

	require.NoError(t, ta.app.Upload(testContext(t), "FIBONACCI"))

	values := unpack(t, outputLine(t, ta.out), "bytes32[]")
	require.Equal(t, [][32]byte{fibGuest.ImageID.Bytes()}, values[0])
	require.False(t, ta.fake.Stored(votesGuest.ImageID.Hex()))
}

func TestApp_UploadUnknownGuest(t *testing.T) {
	ta := newTestApp(t, false)

	err := ta.app.Upload(testContext(t), "NOPE")
	require.ErrorIs(t, err, guest.ErrUnknownGuest)
	require.Empty(t, ta.fake.Uploads())
}

type fakeRelayer struct {
	calls  atomic.Int32
	client relay.ClientConfig
	err    error
	block  bool
}

func (f *fakeRelayer) Run(ctx context.Context, client relay.ClientConfig) error {
	f.calls.Add(1)
	f.client = client
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func TestApp_Run(t *testing.T) {
	r := &fakeRelayer{}
	ta := newTestApp(t, false, WithRelayer(r))

	require.NoError(t, ta.app.Run(testContext(t)))

	require.EqualValues(t, 1, r.calls.Load())
	require.Equal(t, "ws://localhost:8545", r.client.NodeURL)
	require.EqualValues(t, 31337, r.client.ChainID)
	require.Equal(t, relay.DefaultRetryPolicy(), r.client.Retry)
	require.True(t, ta.fake.Stored(votesGuest.ImageID.Hex()))
	require.True(t, ta.fake.Stored(fibGuest.ImageID.Hex()))
}

func TestApp_RunRelayFailure(t *testing.T) {
	r := &fakeRelayer{err: errors.New("node unreachable")}
	ta := newTestApp(t, false, WithRelayer(r))

	err := ta.app.Run(testContext(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "node unreachable")
}

func TestApp_RunCanceled(t *testing.T) {
	r := &fakeRelayer{block: true}
	ta := newTestApp(t, false, WithRelayer(r))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ta.app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return ta.fake.Stored(fibGuest.ImageID.Hex())
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestApp_RunInvalidRelayAddress(t *testing.T) {
	r := &fakeRelayer{}
	ta := newTestApp(t, false, WithRelayer(r))
	ta.app.cfg.Relay.Address = "not-an-address"

	err := ta.app.Run(testContext(t))
	require.Error(t, err)
	require.Zero(t, r.calls.Load())
}
