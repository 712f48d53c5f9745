package resolver

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/bonsai-relay/x/calldata"
)

// ErrInvalidOutputCombination is returned when the dev mode flag and the kind
// of output disagree.
var ErrInvalidOutputCombination = errors.New("invalid dev mode and output combination")

// Output is the result of resolving a guest execution. It is either an
// ExecutionOutput or a FullOutput.
type Output interface {
	output()
	// JournalBytes returns the public output of the execution.
	JournalBytes() []byte
}

// ExecutionOutput is produced in dev mode: the journal without any proof.
type ExecutionOutput struct {
	Journal []byte
}

// FullOutput is a proven execution.
type FullOutput struct {
	Journal         []byte
	PostStateDigest common.Hash
	Proof           calldata.SnarkProof
}

func (ExecutionOutput) output() {}
func (FullOutput) output()      {}

func (o ExecutionOutput) JournalBytes() []byte { return o.Journal }
func (o FullOutput) JournalBytes() []byte      { return o.Journal }

// EncodeQueryOutput maps an output to the tokens printed for a query.
//
// Dev mode accepts only ExecutionOutput and yields [journal]. Otherwise only
// FullOutput is accepted and yields [journal, digest, seal] where seal is the
// ABI-encoded proof wrapped as bytes.
func EncodeQueryOutput(devMode bool, out Output) ([]calldata.Token, error) {
	switch o := out.(type) {
	case ExecutionOutput:
		if !devMode {
			return nil, fmt.Errorf("%w: execution-only output outside dev mode", ErrInvalidOutputCombination)
		}
		return []calldata.Token{calldata.Bytes(o.Journal)}, nil
	case FullOutput:
		if devMode {
			return nil, fmt.Errorf("%w: proven output in dev mode", ErrInvalidOutputCombination)
		}
		seal, err := calldata.EncodeSeal(o.Proof)
		if err != nil {
			return nil, err
		}
		return []calldata.Token{
			calldata.Bytes(o.Journal),
			calldata.FixedBytes32(o.PostStateDigest),
			calldata.Bytes(seal),
		}, nil
	}
	return nil, fmt.Errorf("%w: unsupported output %T", ErrInvalidOutputCombination, out)
}
