package calldata

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// SnarkProof is a Groth16 proof as three groups of base-16 curve coordinates.
// The verifier expects A with 2 elements, B as 2 pairs of 2, and C with 2.
type SnarkProof struct {
	A []string   `json:"a"`
	B [][]string `json:"b"`
	C []string   `json:"c"`
}

const groupSize = 2

// ValidateProof checks the 2 / 2x2 / 2 shape. It does not parse numerals.
func ValidateProof(p SnarkProof) error {
	if len(p.B) != groupSize {
		return fmt.Errorf("%w: group B has %d pairs, want %d", ErrMalformedProof, len(p.B), groupSize)
	}
	groups := []struct {
		name string
		vals []string
	}{
		{"A", p.A},
		{"C", p.C},
		{"B[0]", p.B[0]},
		{"B[1]", p.B[1]},
	}
	for _, g := range groups {
		if len(g.vals) != groupSize {
			return fmt.Errorf("%w: group %s has %d elements, want %d", ErrMalformedProof, g.name, len(g.vals), groupSize)
		}
	}
	return nil
}

// ParseUint256 parses a base-16 numeral of either case, with or without a
// 0x prefix, into a 256-bit unsigned integer.
func ParseUint256(s string) (*uint256.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return nil, fmt.Errorf("%w: %q", ErrNumberParse, s)
	}
	for _, r := range digits {
		if !isHexDigit(r) {
			return nil, fmt.Errorf("%w: %q", ErrNumberParse, s)
		}
	}
	b, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNumberParse, s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %q exceeds 256 bits", ErrNumberParse, s)
	}
	return v, nil
}

func isHexDigit(r rune) bool {
	return ('0' <= r && r <= '9') || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}

// EncodeFixedArray maps numerals to a fixed array of uint256 tokens,
// preserving order.
func EncodeFixedArray(values []string) (Token, error) {
	elems := make([]Token, len(values))
	for i, s := range values {
		v, err := ParseUint256(s)
		if err != nil {
			return Token{}, err
		}
		elems[i] = Uint256(v)
	}
	return FixedArray(elems...), nil
}

// EncodeProof validates p and builds [A, [B0, B1], C], the argument layout of
// the on-chain Groth16 verifier.
func EncodeProof(p SnarkProof) (Token, error) {
	if err := ValidateProof(p); err != nil {
		return Token{}, err
	}

	a, err := EncodeFixedArray(p.A)
	if err != nil {
		return Token{}, err
	}
	b0, err := EncodeFixedArray(p.B[0])
	if err != nil {
		return Token{}, err
	}
	b1, err := EncodeFixedArray(p.B[1])
	if err != nil {
		return Token{}, err
	}
	c, err := EncodeFixedArray(p.C)
	if err != nil {
		return Token{}, err
	}

	return FixedArray(a, FixedArray(b0, b1), c), nil
}

// EncodeSeal returns the ABI encoding of [EncodeProof(p)]. Contracts receive
// the proof as opaque bytes and decode it themselves.
func EncodeSeal(p SnarkProof) ([]byte, error) {
	tok, err := EncodeProof(p)
	if err != nil {
		return nil, err
	}
	return Encode(tok)
}
