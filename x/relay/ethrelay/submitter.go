package ethrelay

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/compose-network/bonsai-relay/x/calldata"
	"github.com/compose-network/bonsai-relay/x/resolver"
)

// DefaultGasLimitBufferPct is added on top of gas estimates.
const DefaultGasLimitBufferPct = 15

// BuildCallback turns a resolved request into the invokeCallback argument.
// Proven outputs carry the encoded seal and post state digest; execute-only
// outputs are submitted with an empty authorization.
func BuildCallback(req CallbackRequest, out resolver.Output) (Callback, error) {
	var auth CallbackAuthorization
	switch o := out.(type) {
	case resolver.FullOutput:
		seal, err := calldata.EncodeSeal(o.Proof)
		if err != nil {
			return Callback{}, fmt.Errorf("encode seal: %w", err)
		}
		auth = CallbackAuthorization{Seal: seal, PostStateDigest: o.PostStateDigest}
	case resolver.ExecutionOutput:
		auth = CallbackAuthorization{Seal: []byte{}}
	default:
		return Callback{}, fmt.Errorf("%w: unsupported output %T", resolver.ErrInvalidOutputCombination, out)
	}

	return Callback{
		Auth:             auth,
		CallbackContract: req.CallbackContract,
		Payload:          CallbackPayload(req.FunctionSelector, out.JournalBytes(), req.ImageID),
		GasLimit:         req.GasLimit,
	}, nil
}

// Submitter signs and sends invokeCallback transactions.
type Submitter struct {
	client       EthClient
	signer       Signer
	binding      *Binding
	chainID      *big.Int
	gasBufferPct uint64
	log          zerolog.Logger
}

// NewSubmitter creates a submitter for chainID.
func NewSubmitter(client EthClient, signer Signer, binding *Binding, chainID uint64, log zerolog.Logger) *Submitter {
	return &Submitter{
		client:       client,
		signer:       signer,
		binding:      binding,
		chainID:      new(big.Int).SetUint64(chainID),
		gasBufferPct: DefaultGasLimitBufferPct,
		log:          log,
	}
}

// Submit sends invokeCallback(cb) as an EIP-1559 transaction.
func (s *Submitter) Submit(ctx context.Context, cb Callback) (*types.Transaction, error) {
	data, err := s.binding.PackInvokeCallback(cb)
	if err != nil {
		return nil, err
	}

	from := s.signer.Address()
	to := s.binding.Address()

	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	tipCap, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas tip: %w", err)
	}
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &to,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas += gas * s.gasBufferPct / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	})
	signed, err := s.signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	s.log.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gas).
		Str("callback_contract", cb.CallbackContract.Hex()).
		Msg("Callback submitted")
	return signed, nil
}
