package ethrelay

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/compose-network/bonsai-relay/x/guest"
)

// Relay contract ABI embedded at compile time
//
//go:embed abi/bonsai_relay.json
var relayABIJSON string

const (
	callbackRequestEvent = "CallbackRequest"
	invokeCallbackMethod = "invokeCallback"
)

// CallbackRequest is a decoded CallbackRequest log.
type CallbackRequest struct {
	Account          common.Address `abi:"account"`
	ImageID          [32]byte       `abi:"imageId"`
	Input            []byte         `abi:"input"`
	CallbackContract common.Address `abi:"callbackContract"`
	FunctionSelector [4]byte        `abi:"functionSelector"`
	GasLimit         uint64         `abi:"gasLimit"`

	// Populated from the log envelope.
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// CallbackAuthorization proves that the payload was produced by the image.
type CallbackAuthorization struct {
	Seal            []byte   `abi:"seal"`
	PostStateDigest [32]byte `abi:"postStateDigest"`
}

// Callback is the argument of invokeCallback.
type Callback struct {
	Auth             CallbackAuthorization `abi:"auth"`
	CallbackContract common.Address        `abi:"callbackContract"`
	Payload          []byte                `abi:"payload"`
	GasLimit         uint64                `abi:"gasLimit"`
}

// Binding encodes and decodes calls to the on-chain relay contract.
type Binding struct {
	address common.Address
	abi     abi.ABI
}

// NewBinding parses the embedded ABI for the contract at address.
func NewBinding(address common.Address) (*Binding, error) {
	if address == (common.Address{}) {
		return nil, errors.New("relay contract address cannot be empty")
	}
	parsed, err := abi.JSON(strings.NewReader(relayABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse relay ABI: %w", err)
	}
	return &Binding{address: address, abi: parsed}, nil
}

// Address returns the relay contract address.
func (b *Binding) Address() common.Address { return b.address }

// ABI returns the parsed relay ABI.
func (b *Binding) ABI() abi.ABI { return b.abi }

// CallbackRequestTopic is the event signature hash of CallbackRequest.
func (b *Binding) CallbackRequestTopic() common.Hash {
	return b.abi.Events[callbackRequestEvent].ID
}

// ParseCallbackRequest decodes a CallbackRequest log emitted by the contract.
func (b *Binding) ParseCallbackRequest(lg types.Log) (CallbackRequest, error) {
	var req CallbackRequest
	if lg.Address != b.address {
		return req, fmt.Errorf("log from %s, want %s", lg.Address.Hex(), b.address.Hex())
	}
	if len(lg.Topics) == 0 || lg.Topics[0] != b.CallbackRequestTopic() {
		return req, errors.New("log is not a CallbackRequest event")
	}
	if err := b.abi.UnpackIntoInterface(&req, callbackRequestEvent, lg.Data); err != nil {
		return req, fmt.Errorf("failed to unpack CallbackRequest: %w", err)
	}
	req.TxHash = lg.TxHash
	req.BlockNumber = lg.BlockNumber
	req.LogIndex = lg.Index
	return req, nil
}

// ImageIDOf returns the requested image id.
func (r CallbackRequest) ImageIDOf() (guest.ImageID, error) {
	return guest.ImageIDFromBytes(r.ImageID[:])
}

// PackInvokeCallback encodes invokeCallback(cb).
func (b *Binding) PackInvokeCallback(cb Callback) ([]byte, error) {
	data, err := b.abi.Pack(invokeCallbackMethod, cb)
	if err != nil {
		return nil, fmt.Errorf("failed to pack invokeCallback calldata: %w", err)
	}
	return data, nil
}

// CallbackPayload is selector ‖ journal ‖ imageId, the calldata the relay
// contract forwards to the callback contract.
func CallbackPayload(selector [4]byte, journal []byte, imageID [32]byte) []byte {
	payload := make([]byte, 0, len(selector)+len(journal)+len(imageID))
	payload = append(payload, selector[:]...)
	payload = append(payload, journal...)
	payload = append(payload, imageID[:]...)
	return payload
}
