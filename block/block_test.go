package block

import (
	"bytes"
	"testing"
)

func mustUUID(t *testing.T) UUID {
	t.Helper()
	u, err := NewUUID()
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	return u
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	u := mustUUID(t)
	link := Link{UUID: u, NodeIndex: 0, HasPrevious: false}
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	b, err := Encode(plaintext, link)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !b.IsEncrypted {
		t.Fatal("Encode: IsEncrypted = false, want true")
	}
	if b.PreviousUUID != None || b.PreviousHash != ZeroHash {
		t.Fatal("tail block should have None/ZeroHash predecessor fields")
	}

	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("Decode = %q, want %q", got, plaintext)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	u := mustUUID(t)
	b, err := Encode(nil, Link{UUID: u})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Decode = %v, want empty", got)
	}
}

func TestChainLinking(t *testing.T) {
	tailUUID := mustUUID(t)
	tail, err := Encode([]byte("tail chunk"), Link{UUID: tailUUID, NodeIndex: 0})
	if err != nil {
		t.Fatalf("Encode(tail): %v", err)
	}
	tailHash := CanonicalHash(tail)

	headUUID := mustUUID(t)
	head, err := Encode([]byte("head chunk"), Link{
		UUID:         headUUID,
		NodeIndex:    1,
		HasPrevious:  true,
		PreviousUUID: tailUUID,
		PreviousHash: tailHash,
	})
	if err != nil {
		t.Fatalf("Encode(head): %v", err)
	}

	if head.PreviousUUID != tailUUID {
		t.Errorf("head.PreviousUUID = %v, want %v", head.PreviousUUID, tailUUID)
	}
	if head.PreviousHash != tailHash {
		t.Errorf("head.PreviousHash = %v, want %v", head.PreviousHash, tailHash)
	}

	if _, err := Decode(head); err != nil {
		t.Fatalf("Decode(head): %v", err)
	}
}

func TestDecodeTamperedCiphertextFailsAuth(t *testing.T) {
	u := mustUUID(t)
	b, err := Encode([]byte("sensitive payload"), Link{UUID: u})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	tampered := *b
	tampered.Payload = append([]byte(nil), b.Payload...)
	tampered.Payload[0] ^= 0xFF

	if _, err := Decode(&tampered); err != ErrAuthFailure {
		t.Fatalf("Decode(tampered) = %v, want ErrAuthFailure", err)
	}
}

func TestDecodeWrongNodeIndexFailsAuth(t *testing.T) {
	u := mustUUID(t)
	b, err := Encode([]byte("payload"), Link{UUID: u, NodeIndex: 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	tampered := *b
	tampered.NodeIndex = 4 // key and AAD both derive from node_index

	if _, err := Decode(&tampered); err != ErrAuthFailure {
		t.Fatalf("Decode(wrong node_index) = %v, want ErrAuthFailure", err)
	}
}

func TestNibbleSplitJoinRoundTrip(t *testing.T) {
	for _, in := range [][]byte{nil, {0x00}, {0xFF}, {0x12, 0x34, 0xAB}, bytes.Repeat([]byte{0x5A}, 100)} {
		split := nibbleSplit(in)
		joined, err := nibbleJoin(split)
		if err != nil {
			t.Fatalf("nibbleJoin: %v", err)
		}
		if !bytes.Equal(joined, in) && !(len(joined) == 0 && len(in) == 0) {
			t.Fatalf("nibble round trip: got %v, want %v", joined, in)
		}
	}
}

func TestNibbleJoinOddLength(t *testing.T) {
	if _, err := nibbleJoin([]byte{0x1}); err != ErrShapeError {
		t.Fatalf("nibbleJoin(odd) = %v, want ErrShapeError", err)
	}
}

func TestEncodeDiagnosticSkipsEncryption(t *testing.T) {
	u := mustUUID(t)
	plaintext := []byte("diagnostic chunk")
	b, err := EncodeDiagnostic(plaintext, Link{UUID: u})
	if err != nil {
		t.Fatalf("EncodeDiagnostic: %v", err)
	}
	if b.IsEncrypted {
		t.Fatal("EncodeDiagnostic: IsEncrypted = true, want false")
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("Decode = %q, want %q", got, plaintext)
	}
}

func TestCanonicalHashDeterministic(t *testing.T) {
	u := mustUUID(t)
	b, err := Encode([]byte("x"), Link{UUID: u})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	h1 := CanonicalHash(b)
	h2 := CanonicalHash(b)
	if h1 != h2 {
		t.Fatal("CanonicalHash is not deterministic over the same block")
	}
}
