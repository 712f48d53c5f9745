package resolver

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/bonsai-relay/x/calldata"
)

func sampleProof() calldata.SnarkProof {
	return calldata.SnarkProof{
		A: []string{"0x01", "0x02"},
		B: [][]string{{"0x03", "0x04"}, {"0x05", "0x06"}},
		C: []string{"0x07", "0x08"},
	}
}

func TestEncodeQueryOutput_ModeConsistency(t *testing.T) {
	exec := ExecutionOutput{Journal: []byte("hello")}
	full := FullOutput{
		Journal:         []byte("x"),
		PostStateDigest: common.HexToHash("0xd1"),
		Proof:           sampleProof(),
	}

	tests := []struct {
		name    string
		devMode bool
		out     Output
		tokens  int
		wantErr bool
	}{
		{name: "dev with execution output", devMode: true, out: exec, tokens: 1},
		{name: "prod with full output", devMode: false, out: full, tokens: 3},
		{name: "dev with full output", devMode: true, out: full, wantErr: true},
		{name: "prod with execution output", devMode: false, out: exec, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := EncodeQueryOutput(tt.devMode, tt.out)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOutputCombination)
				require.Nil(t, tokens)
				return
			}
			require.NoError(t, err)
			require.Len(t, tokens, tt.tokens)
		})
	}
}

func TestEncodeQueryOutput_FullLayout(t *testing.T) {
	digest := common.HexToHash("0xabcdef")
	tokens, err := EncodeQueryOutput(false, FullOutput{
		Journal:         []byte("x"),
		PostStateDigest: digest,
		Proof:           sampleProof(),
	})
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	require.Equal(t, calldata.KindBytes, tokens[0].Kind())
	require.Equal(t, calldata.KindFixedBytes32, tokens[1].Kind())
	require.Equal(t, calldata.KindBytes, tokens[2].Kind())

	seal, err := calldata.EncodeSeal(sampleProof())
	require.NoError(t, err)
	want, err := calldata.Encode(calldata.Bytes([]byte("x")), calldata.FixedBytes32(digest), calldata.Bytes(seal))
	require.NoError(t, err)
	got, err := calldata.Encode(tokens...)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEncodeQueryOutput_MalformedProof(t *testing.T) {
	proof := sampleProof()
	proof.C = proof.C[:1]

	_, err := EncodeQueryOutput(false, FullOutput{Proof: proof})
	require.ErrorIs(t, err, calldata.ErrMalformedProof)
}

func TestEncodeQueryOutput_Nil(t *testing.T) {
	_, err := EncodeQueryOutput(true, nil)
	require.ErrorIs(t, err, ErrInvalidOutputCombination)
}
