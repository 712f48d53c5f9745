package calldata

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind enumerates the token node kinds.
type Kind uint8

const (
	KindBytes Kind = iota
	KindFixedBytes32
	KindUint256
	KindFixedArray
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindFixedBytes32:
		return "bytes32"
	case KindUint256:
		return "uint256"
	case KindFixedArray:
		return "fixed_array"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Token is a node of an ABI token tree. Trees are built per encode call and
// only exist to derive the ABI type and value handed to the packer.
type Token struct {
	kind  Kind
	bytes []byte
	hash  common.Hash
	num   *uint256.Int
	elems []Token
}

// Bytes wraps an opaque byte string (ABI `bytes`).
func Bytes(b []byte) Token {
	return Token{kind: KindBytes, bytes: b}
}

// FixedBytes32 wraps a 32-byte hash (ABI `bytes32`).
func FixedBytes32(h common.Hash) Token {
	return Token{kind: KindFixedBytes32, hash: h}
}

// Uint256 wraps an unsigned 256-bit integer.
func Uint256(v *uint256.Int) Token {
	return Token{kind: KindUint256, num: v}
}

// FixedArray groups tokens positionally. Elements of one type encode as T[n];
// mixed element types encode as a tuple, which has the same layout.
func FixedArray(elems ...Token) Token {
	return Token{kind: KindFixedArray, elems: elems}
}

// Array is a length-prefixed list (ABI T[]). Elements must share one type.
func Array(elems ...Token) Token {
	return Token{kind: KindArray, elems: elems}
}

// Kind returns the node kind.
func (t Token) Kind() Kind { return t.kind }

// Elems returns the children of an array node.
func (t Token) Elems() []Token { return t.elems }

// Encode ABI-encodes a token sequence as a top-level argument list.
func Encode(tokens ...Token) ([]byte, error) {
	args := make(abi.Arguments, len(tokens))
	values := make([]any, len(tokens))
	for i, tok := range tokens {
		typ, err := tok.abiType()
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		val, err := tok.value(typ)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		args[i] = abi.Argument{Type: typ}
		values[i] = val.Interface()
	}

	packed, err := args.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("abi pack: %w", err)
	}
	return packed, nil
}

// EncodeHex is Encode rendered as lowercase hex without 0x prefix.
func EncodeHex(tokens ...Token) (string, error) {
	packed, err := Encode(tokens...)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(packed), nil
}

func (t Token) abiType() (abi.Type, error) {
	m, err := t.marshaling("")
	if err != nil {
		return abi.Type{}, err
	}
	typ, err := abi.NewType(m.Type, "", m.Components)
	if err != nil {
		return abi.Type{}, fmt.Errorf("build abi type %s: %w", m.Type, err)
	}
	return typ, nil
}

// marshaling describes the token as an abi.ArgumentMarshaling so nested
// arrays and tuples can be handed to abi.NewType in one go.
func (t Token) marshaling(name string) (abi.ArgumentMarshaling, error) {
	switch t.kind {
	case KindBytes, KindFixedBytes32, KindUint256:
		return abi.ArgumentMarshaling{Name: name, Type: t.kind.String()}, nil

	case KindFixedArray:
		elems, uniform, err := elemMarshalings(t.elems)
		if err != nil {
			return abi.ArgumentMarshaling{}, err
		}
		if len(elems) == 0 {
			return abi.ArgumentMarshaling{Name: name, Type: "uint256[0]"}, nil
		}
		if uniform {
			return abi.ArgumentMarshaling{
				Name:       name,
				Type:       fmt.Sprintf("%s[%d]", elems[0].Type, len(elems)),
				Components: elems[0].Components,
			}, nil
		}
		return abi.ArgumentMarshaling{Name: name, Type: "tuple", Components: elems}, nil

	case KindArray:
		elems, uniform, err := elemMarshalings(t.elems)
		if err != nil {
			return abi.ArgumentMarshaling{}, err
		}
		if len(elems) == 0 {
			// The element type does not affect the encoding of an empty list.
			return abi.ArgumentMarshaling{Name: name, Type: "uint256[]"}, nil
		}
		if !uniform {
			return abi.ArgumentMarshaling{}, errors.New("array elements must share one type")
		}
		return abi.ArgumentMarshaling{
			Name:       name,
			Type:       elems[0].Type + "[]",
			Components: elems[0].Components,
		}, nil
	}
	return abi.ArgumentMarshaling{}, fmt.Errorf("unsupported token kind %s", t.kind)
}

func elemMarshalings(elems []Token) ([]abi.ArgumentMarshaling, bool, error) {
	out := make([]abi.ArgumentMarshaling, len(elems))
	sigs := make([]string, len(elems))
	uniform := true
	for i, el := range elems {
		m, err := el.marshaling(fmt.Sprintf("f%d", i))
		if err != nil {
			return nil, false, err
		}
		typ, err := abi.NewType(m.Type, "", m.Components)
		if err != nil {
			return nil, false, fmt.Errorf("build abi type %s: %w", m.Type, err)
		}
		out[i] = m
		sigs[i] = typ.String()
		if sigs[i] != sigs[0] {
			uniform = false
		}
	}
	return out, uniform, nil
}

// value builds the Go value go-ethereum expects for typ.
func (t Token) value(typ abi.Type) (reflect.Value, error) {
	switch t.kind {
	case KindBytes:
		b := make([]byte, len(t.bytes))
		copy(b, t.bytes)
		return reflect.ValueOf(b), nil

	case KindFixedBytes32:
		return reflect.ValueOf([32]byte(t.hash)), nil

	case KindUint256:
		if t.num == nil {
			return reflect.Value{}, errors.New("nil uint256 token")
		}
		return reflect.ValueOf(t.num.ToBig()), nil

	case KindFixedArray, KindArray:
		return t.compositeValue(typ)
	}
	return reflect.Value{}, fmt.Errorf("unsupported token kind %s", t.kind)
}

func (t Token) compositeValue(typ abi.Type) (reflect.Value, error) {
	switch typ.T {
	case abi.TupleTy:
		v := reflect.New(typ.GetType()).Elem()
		for i, el := range t.elems {
			ev, err := el.value(*typ.TupleElems[i])
			if err != nil {
				return reflect.Value{}, err
			}
			v.Field(i).Set(ev)
		}
		return v, nil

	case abi.ArrayTy:
		v := reflect.New(typ.GetType()).Elem()
		for i, el := range t.elems {
			ev, err := el.value(*typ.Elem)
			if err != nil {
				return reflect.Value{}, err
			}
			v.Index(i).Set(ev)
		}
		return v, nil

	case abi.SliceTy:
		v := reflect.MakeSlice(typ.GetType(), len(t.elems), len(t.elems))
		for i, el := range t.elems {
			ev, err := el.value(*typ.Elem)
			if err != nil {
				return reflect.Value{}, err
			}
			v.Index(i).Set(ev)
		}
		return v, nil
	}
	return reflect.Value{}, fmt.Errorf("abi type %s is not composite", typ.String())
}
