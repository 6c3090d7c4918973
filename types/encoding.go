package types

import (
	"github.com/ethereum/go-ethereum/rlp"
)

// rlpEncode is the single choke point for this package's canonical,
// deterministic encoding of sign-bytes and hash preimages. Every "for-sign"
// struct below declares its fields in a fixed order, and RLP encodes a
// struct strictly in that declaration order — which is what gives two
// honest nodes bit-identical bytes for the same logical value, the
// property the consensus protocol depends on for signature verification
// and hashing to agree across validators.
func rlpEncode(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// rlpDecode inverts rlpEncode: out must be a pointer to the same forSign
// struct type the bytes were produced from.
func rlpDecode(data []byte, out interface{}) error {
	return rlp.DecodeBytes(data, out)
}
