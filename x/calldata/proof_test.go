package calldata

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/require"
)

func mustType(t *testing.T, typ string) abi.Type {
	t.Helper()
	ty, err := abi.NewType(typ, "", nil)
	require.NoError(t, err)
	return ty
}

func hexBig(t *testing.T, s string) *big.Int {
	t.Helper()
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, ok := new(big.Int).SetString(s, 16)
	require.True(t, ok)
	return v
}

func sampleProof() SnarkProof {
	return SnarkProof{
		A: []string{"0x1", "2a"},
		B: [][]string{
			{"0x0b00", "0B01"},
			{"b10", "0xB11"},
		},
		C: []string{strings.Repeat("f", 64), "0x" + strings.Repeat("A", 63)},
	}
}

// decodeSeal unpacks an encoded seal with the verifier's argument layout.
func decodeSeal(t *testing.T, seal []byte) ([2]*big.Int, [2][2]*big.Int, [2]*big.Int) {
	t.Helper()
	args := abi.Arguments{
		{Type: mustType(t, "uint256[2]")},
		{Type: mustType(t, "uint256[2][2]")},
		{Type: mustType(t, "uint256[2]")},
	}
	out, err := args.Unpack(seal)
	require.NoError(t, err)
	require.Len(t, out, 3)
	return out[0].([2]*big.Int), out[1].([2][2]*big.Int), out[2].([2]*big.Int)
}

func TestEncodeSeal_RoundTrip(t *testing.T) {
	p := sampleProof()

	seal, err := EncodeSeal(p)
	require.NoError(t, err)
	require.Len(t, seal, 8*32)

	a, b, c := decodeSeal(t, seal)
	for i := 0; i < 2; i++ {
		require.Zero(t, hexBig(t, p.A[i]).Cmp(a[i]), "a[%d]", i)
		require.Zero(t, hexBig(t, p.C[i]).Cmp(c[i]), "c[%d]", i)
		for j := 0; j < 2; j++ {
			require.Zero(t, hexBig(t, p.B[i][j]).Cmp(b[i][j]), "b[%d][%d]", i, j)
		}
	}
}

func TestEncodeSeal_CaseInsensitive(t *testing.T) {
	lower := sampleProof()
	upper := SnarkProof{
		A: []string{strings.ToUpper(lower.A[0][2:]), strings.ToUpper(lower.A[1])},
		B: [][]string{
			{strings.ToUpper(lower.B[0][0][2:]), strings.ToLower(lower.B[0][1])},
			{strings.ToUpper(lower.B[1][0]), strings.ToLower(lower.B[1][1])},
		},
		C: []string{strings.ToUpper(lower.C[0]), strings.ToLower(lower.C[1])},
	}

	want, err := EncodeSeal(lower)
	require.NoError(t, err)
	got, err := EncodeSeal(upper)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEncodeProof_Layout(t *testing.T) {
	tok, err := EncodeProof(sampleProof())
	require.NoError(t, err)
	require.Equal(t, KindFixedArray, tok.Kind())
	require.Len(t, tok.Elems(), 3)
	require.Len(t, tok.Elems()[0].Elems(), 2)
	require.Len(t, tok.Elems()[1].Elems(), 2)
	require.Len(t, tok.Elems()[1].Elems()[0].Elems(), 2)
	require.Len(t, tok.Elems()[2].Elems(), 2)
}

func TestValidateProof_Malformed(t *testing.T) {
	ok := sampleProof()
	tests := []struct {
		name   string
		mutate func(p *SnarkProof)
	}{
		{"B one pair", func(p *SnarkProof) { p.B = p.B[:1] }},
		{"B three pairs", func(p *SnarkProof) { p.B = append(p.B, []string{"1", "2"}) }},
		{"B nil", func(p *SnarkProof) { p.B = nil }},
		{"A short", func(p *SnarkProof) { p.A = p.A[:1] }},
		{"A long", func(p *SnarkProof) { p.A = append(p.A, "3") }},
		{"C empty", func(p *SnarkProof) { p.C = nil }},
		{"B0 short", func(p *SnarkProof) { p.B = [][]string{{"1"}, {"2", "3"}} }},
		{"B1 long", func(p *SnarkProof) { p.B = [][]string{{"1", "2"}, {"3", "4", "5"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SnarkProof{
				A: append([]string(nil), ok.A...),
				B: [][]string{append([]string(nil), ok.B[0]...), append([]string(nil), ok.B[1]...)},
				C: append([]string(nil), ok.C...),
			}
			tt.mutate(&p)

			require.ErrorIs(t, ValidateProof(p), ErrMalformedProof)

			_, err := EncodeProof(p)
			require.ErrorIs(t, err, ErrMalformedProof)

			seal, err := EncodeSeal(p)
			require.ErrorIs(t, err, ErrMalformedProof)
			require.Nil(t, seal)
		})
	}
}

func TestValidateProof_DoesNotParseNumerals(t *testing.T) {
	p := SnarkProof{A: []string{"zz", "zz"}, B: [][]string{{"zz", "zz"}, {"zz", "zz"}}, C: []string{"zz", "zz"}}
	require.NoError(t, ValidateProof(p))
}

func TestParseUint256_Invalid(t *testing.T) {
	for _, s := range []string{"", "0x", "xyz", "-1", "+1", "12 34", "0x0x1", "1_000", strings.Repeat("f", 65)} {
		_, err := ParseUint256(s)
		require.ErrorIs(t, err, ErrNumberParse, "input %q", s)
	}
}

func TestParseUint256_Valid(t *testing.T) {
	v, err := ParseUint256("0x" + strings.Repeat("0", 70) + "ff")
	require.NoError(t, err)
	require.Equal(t, uint64(255), v.Uint64())

	v, err = ParseUint256(strings.Repeat("F", 64))
	require.NoError(t, err)
	require.Equal(t, 256, v.BitLen())
}

func TestEncodeProof_NumberParseError(t *testing.T) {
	p := sampleProof()
	p.B[1][0] = "not-hex"
	_, err := EncodeProof(p)
	require.ErrorIs(t, err, ErrNumberParse)
	require.NotErrorIs(t, err, ErrMalformedProof)
}

func TestEncodeFixedArray_PreservesOrder(t *testing.T) {
	tok, err := EncodeFixedArray([]string{"3", "1", "2"})
	require.NoError(t, err)

	packed, err := Encode(tok)
	require.NoError(t, err)

	out, err := abi.Arguments{{Type: mustType(t, "uint256[3]")}}.Unpack(packed)
	require.NoError(t, err)
	got := out[0].([3]*big.Int)
	require.Equal(t, []int64{3, 1, 2}, []int64{got[0].Int64(), got[1].Int64(), got[2].Int64()})
}
