package calldata

import "github.com/compose-network/bonsai-relay/x/guest"

// ImageIDToken encodes an image identifier as bytes32.
func ImageIDToken(id guest.ImageID) Token {
	return FixedBytes32(id.Hash())
}

// ImageIDsToken encodes a list of image identifiers as bytes32[].
func ImageIDsToken(ids []guest.ImageID) Token {
	elems := make([]Token, len(ids))
	for i, id := range ids {
		elems[i] = ImageIDToken(id)
	}
	return Array(elems...)
}
