package guest

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ImageIDLength is the byte length of a serialized image identifier.
const ImageIDLength = 32

// ImageID is the content-addressed identifier of a guest program: eight
// 32-bit words. Its byte form is the little-endian serialization of the words.
type ImageID [8]uint32

// Bytes returns the 32-byte serialization of the identifier.
func (id ImageID) Bytes() [ImageIDLength]byte {
	var out [ImageIDLength]byte
	for i, w := range id {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// Hash returns the identifier as a bytes32 value.
func (id ImageID) Hash() common.Hash {
	return common.Hash(id.Bytes())
}

// Hex returns the lowercase hex form of Bytes without prefix. This is the
// identifier string used by the proving service.
func (id ImageID) Hex() string {
	b := id.Bytes()
	return hex.EncodeToString(b[:])
}

func (id ImageID) String() string { return id.Hex() }

// ImageIDFromBytes is the inverse of ImageID.Bytes.
func ImageIDFromBytes(b []byte) (ImageID, error) {
	var id ImageID
	if len(b) != ImageIDLength {
		return id, fmt.Errorf("image id must be %d bytes, got %d", ImageIDLength, len(b))
	}
	for i := range id {
		id[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return id, nil
}

// ParseImageID decodes a 64-character hex string, with or without 0x prefix.
func ParseImageID(s string) (ImageID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ImageID{}, fmt.Errorf("invalid image id %q: %w", s, err)
	}
	return ImageIDFromBytes(raw)
}

// UnmarshalText accepts the forms understood by ParseImageID. Manifests and
// env values go through it.
func (id *ImageID) UnmarshalText(text []byte) error {
	parsed, err := ParseImageID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ImageID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}
