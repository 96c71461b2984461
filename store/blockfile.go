package store

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/vaultnetwork/vault/block"
	"golang.org/x/xerrors"
)

// ErrCorruptBlockFile is returned by DeserializeBlock when the on-disk
// layout doesn't parse: short reads, an impossible has_prev flag, or a
// payload length that overruns the buffer.
var ErrCorruptBlockFile = xerrors.New("store: corrupt block file")

// SerializeBlock renders b in the canonical on-disk block file format:
//
//	u128 uuid | u64 node_index | u8 has_prev | [u128 previous_uuid]
//	32 bytes previous_hash | 12 bytes nonce
//	u32 payload_len | payload_len bytes payload | u8 is_encrypted
//
// All integers little-endian. previous_uuid is present only when
// has_prev is nonzero, matching a tail block (node_index 0) that carries
// no predecessor.
func SerializeBlock(b *block.DataBlock) ([]byte, error) {
	var out bytes.Buffer
	out.Write(b.UUID[:])
	if err := binary.Write(&out, binary.LittleEndian, b.NodeIndex); err != nil {
		return nil, err
	}
	hasPrev := b.PreviousUUID != block.None
	if hasPrev {
		out.WriteByte(1)
		out.Write(b.PreviousUUID[:])
	} else {
		out.WriteByte(0)
	}
	out.Write(b.PreviousHash[:])
	out.Write(b.Nonce[:])
	if err := binary.Write(&out, binary.LittleEndian, uint32(len(b.Payload))); err != nil {
		return nil, err
	}
	out.Write(b.Payload)
	if b.IsEncrypted {
		out.WriteByte(1)
	} else {
		out.WriteByte(0)
	}
	return out.Bytes(), nil
}

// DeserializeBlock parses the canonical on-disk block file format
// produced by SerializeBlock.
func DeserializeBlock(raw []byte) (*block.DataBlock, error) {
	r := bytes.NewReader(raw)
	var b block.DataBlock

	if _, err := io.ReadFull(r, b.UUID[:]); err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrCorruptBlockFile, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &b.NodeIndex); err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrCorruptBlockFile, err)
	}
	hasPrev, err := r.ReadByte()
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrCorruptBlockFile, err)
	}
	switch hasPrev {
	case 0:
		b.PreviousUUID = block.None
	case 1:
		if _, err := io.ReadFull(r, b.PreviousUUID[:]); err != nil {
			return nil, xerrors.Errorf("%w: %v", ErrCorruptBlockFile, err)
		}
	default:
		return nil, ErrCorruptBlockFile
	}
	if _, err := io.ReadFull(r, b.PreviousHash[:]); err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrCorruptBlockFile, err)
	}
	if _, err := io.ReadFull(r, b.Nonce[:]); err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrCorruptBlockFile, err)
	}
	var payloadLen uint32
	if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrCorruptBlockFile, err)
	}
	if int64(payloadLen) > int64(r.Len()) {
		return nil, ErrCorruptBlockFile
	}
	b.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(r, b.Payload); err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrCorruptBlockFile, err)
	}
	isEncrypted, err := r.ReadByte()
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrCorruptBlockFile, err)
	}
	b.IsEncrypted = isEncrypted != 0

	return &b, nil
}
