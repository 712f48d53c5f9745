package bonsai

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bytes decodes byte payloads from the service. Rust Vec<u8> fields arrive
// as arrays of integers; 0x-prefixed hex and base64 strings are accepted too.
// MarshalJSON emits the integer-array form.
type Bytes []byte

// UnmarshalJSON implements json.Unmarshaler.
func (p *Bytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}
	switch data[0] {
	case '[':
		var ints []int
		if err := json.Unmarshal(data, &ints); err != nil {
			return fmt.Errorf("byte array must contain integers: %w", err)
		}
		buf := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return fmt.Errorf("byte out of range: %d", v)
			}
			buf[i] = byte(v)
		}
		*p = buf
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("byte string invalid: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = nil
			return nil
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			decoded, err := hexutil.Decode("0x" + s[2:])
			if err != nil {
				return fmt.Errorf("hex decode failed: %w", err)
			}
			*p = decoded
			return nil
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("base64 decode failed: %w", err)
		}
		*p = decoded
		return nil
	}
	return fmt.Errorf("unsupported byte encoding")
}

// MarshalJSON implements json.Marshaler.
func (p Bytes) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(p))
	for i, b := range p {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}
