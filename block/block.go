// Package block implements the DataBlock codec: nibble-split → Huffman
// compress → AES-256-GCM encrypt → chain-link, and its inverse. A DataBlock
// is the atomic unit of storage; files are split into chunks, and each
// chunk becomes one DataBlock linked to its predecessor by uuid and hash.
package block

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	"github.com/vaultnetwork/vault/huffman"
	"golang.org/x/xerrors"
)

// Sentinel errors. Decode wraps ErrCorruptFrame around any huffman decoding
// failure; the huffman error is kept only as text in the message, so callers
// match on ErrCorruptFrame.
var (
	ErrAuthFailure  = xerrors.New("block: AEAD authentication failed")
	ErrCorruptFrame = xerrors.New("block: corrupt compressed frame")
	ErrShapeError   = xerrors.New("block: odd-length nibble stream")
)

// UUID is a 128-bit block identifier.
type UUID [16]byte

// None is the sentinel UUID used by the tail block's PreviousUUID, meaning
// "no predecessor".
var None UUID

// NewUUID generates a fresh, random UUID.
func NewUUID() (UUID, error) {
	var u UUID
	if _, err := rand.Read(u[:]); err != nil {
		return UUID{}, err
	}
	return u, nil
}

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

// ZeroHash is the sentinel hash used by the tail block's PreviousHash.
var ZeroHash Hash

// DataBlock is the atomic unit of storage, per spec §3.
type DataBlock struct {
	UUID UUID

	// NodeIndex is this block's position in its chain. 0 is the tail (the
	// last chunk of the file); it increases toward the head.
	NodeIndex uint64

	// PreviousUUID is the uuid of the block at NodeIndex-1, or None for
	// the tail.
	PreviousUUID UUID

	// PreviousHash is SHA-256 of the canonical serialisation of the
	// previous block, or ZeroHash for the tail.
	PreviousHash Hash

	// Nonce is 12 random bytes, fresh per block.
	Nonce [12]byte

	// Payload is the encrypted, compressed, nibble-split chunk.
	Payload []byte

	// IsEncrypted is always true in production. EncodeDiagnostic produces
	// blocks with this set to false, skipping the AEAD step entirely, for
	// codec tests that want to inspect the compressed frame directly.
	IsEncrypted bool
}

// deriveKey computes the per-block AES-256 key, SHA-256(uuid‖be64(node_index)).
func deriveKey(uuid UUID, nodeIndex uint64) [32]byte {
	h := sha256.New()
	h.Write(uuid[:])
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], nodeIndex)
	h.Write(be[:])
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

func aad(uuid UUID, nodeIndex uint64, previousUUID UUID) []byte {
	out := make([]byte, 0, 16+8+16)
	out = append(out, uuid[:]...)
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], nodeIndex)
	out = append(out, be[:]...)
	out = append(out, previousUUID[:]...)
	return out
}

// nibbleSplit doubles the length of p, emitting each byte's high nibble
// then its low nibble as separate bytes.
func nibbleSplit(p []byte) []byte {
	out := make([]byte, len(p)*2)
	for i, b := range p {
		out[2*i] = b >> 4
		out[2*i+1] = b & 0x0F
	}
	return out
}

// nibbleJoin reverses nibbleSplit. Returns ErrShapeError if n has odd
// length.
func nibbleJoin(n []byte) ([]byte, error) {
	if len(n)%2 != 0 {
		return nil, ErrShapeError
	}
	out := make([]byte, len(n)/2)
	for i := range out {
		out[i] = n[2*i]<<4 | n[2*i+1]
	}
	return out, nil
}

func seal(key [32]byte, nonce [12]byte, plaintext, ad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce[:], plaintext, ad), nil
}

func open(key [32]byte, nonce [12]byte, ciphertext, ad []byte) ([]byte, error) {
	blk, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(blk)
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return pt, nil
}

// Link describes a block's position in its chain: where it sits, and what
// it points back to. The tail block (NodeIndex 0) has HasPrevious == false
// and PreviousUUID/PreviousHash are ignored (None/ZeroHash are used).
type Link struct {
	UUID         UUID
	NodeIndex    uint64
	HasPrevious  bool
	PreviousUUID UUID
	PreviousHash Hash
}

// Encode produces a DataBlock for one plaintext chunk, encrypted under the
// per-block derived key.
func Encode(plaintext []byte, link Link) (*DataBlock, error) {
	return encode(plaintext, link, true)
}

// EncodeDiagnostic produces a DataBlock with IsEncrypted=false, skipping
// the AEAD step. It exists only for codec tests that want to inspect the
// compressed payload directly; vfs never produces these.
func EncodeDiagnostic(plaintext []byte, link Link) (*DataBlock, error) {
	return encode(plaintext, link, false)
}

func encode(plaintext []byte, link Link, encrypt bool) (*DataBlock, error) {
	compressed, err := huffman.Compress(nibbleSplit(plaintext))
	if err != nil {
		return nil, err
	}

	prevUUID := link.PreviousUUID
	prevHash := link.PreviousHash
	if !link.HasPrevious {
		prevUUID = None
		prevHash = ZeroHash
	}

	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	payload := compressed
	if encrypt {
		key := deriveKey(link.UUID, link.NodeIndex)
		payload, err = seal(key, nonce, compressed, aad(link.UUID, link.NodeIndex, prevUUID))
		if err != nil {
			return nil, err
		}
	}

	return &DataBlock{
		UUID:         link.UUID,
		NodeIndex:    link.NodeIndex,
		PreviousUUID: prevUUID,
		PreviousHash: prevHash,
		Nonce:        nonce,
		Payload:      payload,
		IsEncrypted:  encrypt,
	}, nil
}

// Decode reverses Encode (or EncodeDiagnostic, following b.IsEncrypted),
// returning the original plaintext chunk.
func Decode(b *DataBlock) ([]byte, error) {
	compressed := b.Payload
	if b.IsEncrypted {
		key := deriveKey(b.UUID, b.NodeIndex)
		pt, err := open(key, b.Nonce, b.Payload, aad(b.UUID, b.NodeIndex, b.PreviousUUID))
		if err != nil {
			return nil, err
		}
		compressed = pt
	}

	nibbles, err := huffman.Decompress(compressed)
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrCorruptFrame, err)
	}
	plaintext, err := nibbleJoin(nibbles)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// CanonicalHash computes H = SHA-256(uuid‖be64(node_index)‖previous_uuid‖nonce‖payload),
// the value the next block in the chain stores as PreviousHash.
func CanonicalHash(b *DataBlock) Hash {
	h := sha256.New()
	h.Write(b.UUID[:])
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], b.NodeIndex)
	h.Write(be[:])
	h.Write(b.PreviousUUID[:])
	h.Write(b.Nonce[:])
	h.Write(b.Payload)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
