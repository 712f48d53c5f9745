package calldata

import "errors"

var (
	// ErrMalformedProof reports a proof that does not have the 2 / 2x2 / 2 shape.
	ErrMalformedProof = errors.New("hex-strings encoded proof is not well formed")
	// ErrNumberParse reports a coordinate that is not a base-16 uint256.
	ErrNumberParse = errors.New("invalid base-16 uint256")
)
