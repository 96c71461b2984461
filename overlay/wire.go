package overlay

import (
	"encoding/binary"
	"io"

	"github.com/vaultnetwork/vault/block"
	"github.com/vaultnetwork/vault/store"
	"golang.org/x/xerrors"
)

// Message kind tags, per spec.md §4.5. Every wire message is a 4-byte
// big-endian length prefix, a 1-byte kind tag, then a kind-specific
// payload — a custom framing rather than gRPC/protobuf, since the spec
// fixes an exact interoperable byte layout incompatible with HTTP/2
// framing (see DESIGN.md for the dropped grpc/protobuf dependency).
type Kind byte

const (
	KindRequestBlock  Kind = 1
	KindResponseBlock Kind = 2
	KindStoreBlock    Kind = 3
	KindStoreAck      Kind = 4
	KindPing          Kind = 5
	KindPong          Kind = 6
)

// ErrUnknownKind marks a message whose kind tag this node doesn't
// recognise. No counter records these: Listener.Serve closes the
// connection without a reply on any ReadMessage error, this one included,
// and netTransport.Send returns it to its caller.
var ErrUnknownKind = xerrors.New("overlay: unknown message kind")

// ErrFrameTooLarge guards against a malicious or corrupt peer claiming
// an unbounded frame length.
var ErrFrameTooLarge = xerrors.New("overlay: frame exceeds maximum size")

// MaxFrameSize bounds a single wire message (header + block payload).
const MaxFrameSize = 16 * 1024 * 1024

// Message is a decoded wire message; exactly one of the typed fields is
// meaningful, selected by Kind.
type Message struct {
	Kind Kind

	RequestBlockUUID block.UUID

	ResponseBlockFound bool
	ResponseBlock      *block.DataBlock

	StoreBlock *block.DataBlock

	StoreAckUUID block.UUID
	StoreAckOK   bool

	PeerID ID
}

// WriteMessage frames and writes m to w.
func WriteMessage(w io.Writer, m Message) error {
	body, err := encodeBody(m)
	if err != nil {
		return err
	}
	frame := make([]byte, 4+1+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(1+len(body)))
	frame[4] = byte(m.Kind)
	copy(frame[5:], body)
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads and decodes the next message from r. An unrecognised
// kind tag returns ErrUnknownKind with the frame already fully consumed,
// so the stream stays in sync for a caller that keeps reading.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > MaxFrameSize {
		return Message{}, ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, err
	}
	kind := Kind(payload[0])
	body := payload[1:]
	return decodeBody(kind, body)
}

func encodeBody(m Message) ([]byte, error) {
	switch m.Kind {
	case KindRequestBlock:
		return m.RequestBlockUUID[:], nil
	case KindResponseBlock:
		if !m.ResponseBlockFound {
			return []byte{0}, nil
		}
		raw, err := store.SerializeBlock(m.ResponseBlock)
		if err != nil {
			return nil, err
		}
		return append([]byte{1}, raw...), nil
	case KindStoreBlock:
		return store.SerializeBlock(m.StoreBlock)
	case KindStoreAck:
		ok := byte(0)
		if m.StoreAckOK {
			ok = 1
		}
		return append(append([]byte{}, m.StoreAckUUID[:]...), ok), nil
	case KindPing, KindPong:
		return m.PeerID[:], nil
	default:
		return nil, ErrUnknownKind
	}
}

func decodeBody(kind Kind, body []byte) (Message, error) {
	switch kind {
	case KindRequestBlock:
		if len(body) != 16 {
			return Message{}, xerrors.Errorf("overlay: RequestBlock: %w", ErrFrameTooLarge)
		}
		var m Message
		m.Kind = kind
		copy(m.RequestBlockUUID[:], body)
		return m, nil
	case KindResponseBlock:
		if len(body) == 0 {
			return Message{}, ErrFrameTooLarge
		}
		m := Message{Kind: kind, ResponseBlockFound: body[0] != 0}
		if m.ResponseBlockFound {
			b, err := store.DeserializeBlock(body[1:])
			if err != nil {
				return Message{}, err
			}
			m.ResponseBlock = b
		}
		return m, nil
	case KindStoreBlock:
		b, err := store.DeserializeBlock(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, StoreBlock: b}, nil
	case KindStoreAck:
		if len(body) != 17 {
			return Message{}, ErrFrameTooLarge
		}
		m := Message{Kind: kind, StoreAckOK: body[16] != 0}
		copy(m.StoreAckUUID[:], body[:16])
		return m, nil
	case KindPing, KindPong:
		if len(body) != 32 {
			return Message{}, ErrFrameTooLarge
		}
		m := Message{Kind: kind}
		copy(m.PeerID[:], body)
		return m, nil
	default:
		return Message{}, ErrUnknownKind
	}
}
