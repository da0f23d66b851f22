package codec

import "errors"

// Wire format constants. These are part of the stable on-disk contract
// and must never change.
const (
	// EndOfKeyGroupMark terminates a key-group block. It occupies the
	// 2-byte key-length position, which is why key lengths are capped at
	// MaxKeyLength and key-group indices below 0xFFFF.
	EndOfKeyGroupMark = 0xFFFF

	// MetaFlagMask is the metadata-follows bit in the first byte of an
	// entry's encoded key.
	MetaFlagMask = 0x80

	// MinKeyLength is the smallest key the codec accepts. Zero-length
	// keys would leave the metadata-follows flag with no byte to live in.
	MinKeyLength = 1

	// MaxKeyLength keeps the key-length prefix distinguishable from the
	// end-of-key-group mark.
	MaxKeyLength = EndOfKeyGroupMark - 1
)

var (
	// ErrKeyLength indicates a key shorter than MinKeyLength or longer
	// than MaxKeyLength.
	ErrKeyLength = errors.New("codec: key length out of bounds")

	// ErrGroupOrder indicates entries arrived out of ascending key-group
	// order, or outside the declared range.
	ErrGroupOrder = errors.New("codec: key group out of order")

	// ErrCorruptStream indicates structurally invalid snapshot bytes.
	ErrCorruptStream = errors.New("codec: corrupt snapshot stream")

	// ErrMissingStateID indicates the first entry of a stream carried no
	// metadata record, leaving its owning state unknown.
	ErrMissingStateID = errors.New("codec: first entry missing state id record")

	// ErrKeyFlagged indicates a logical key whose first byte already has
	// the metadata-follows bit set. The bit is reserved by the wire
	// format; producers must keep the first key byte below 0x80.
	ErrKeyFlagged = errors.New("codec: first key byte carries reserved flag bit")
)

// HasMetaFollowsFlag reports whether the metadata-follows bit is set in
// the first byte of the encoded key.
func HasMetaFollowsFlag(key []byte) bool {
	return len(key) > 0 && key[0]&MetaFlagMask != 0
}

// SetMetaFollowsFlag sets the metadata-follows bit in place.
func SetMetaFollowsFlag(key []byte) {
	if len(key) > 0 {
		key[0] |= MetaFlagMask
	}
}

// ClearMetaFollowsFlag clears the metadata-follows bit in place.
// Clearing after setting restores the original bytes exactly; the flag
// is never part of a key's logical value.
func ClearMetaFollowsFlag(key []byte) {
	if len(key) > 0 {
		key[0] &^= MetaFlagMask
	}
}
