package overlay

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/vaultnetwork/vault/block"
	"github.com/vaultnetwork/vault/overlay/overlaytest"
)

func makeStoredBlock(t *testing.T) *block.DataBlock {
	t.Helper()
	uuid, err := block.NewUUID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := block.Encode([]byte("hello network"), block.Link{UUID: uuid})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestNode(selfSuffix byte, ft *overlaytest.FakeTransport) *Node {
	var self ID
	self[31] = selfSuffix
	return NewNode(self, ft)
}

func TestDistanceAndLess(t *testing.T) {
	var a, b ID
	a[31] = 0x0F
	b[31] = 0xF0
	d := Distance(a, b)
	if d[31] != 0xFF {
		t.Fatalf("Distance = %x, want last byte 0xff", d[31])
	}
	var small, large ID
	small[0] = 0x01
	large[0] = 0x02
	if !Less(Distance(small, ID{}), Distance(large, ID{})) {
		t.Fatal("Less: expected smaller XOR distance to compare less")
	}
}

func TestRoutingTableClosest(t *testing.T) {
	var self ID
	rt := NewRoutingTable(self)
	for i := 0; i < 5; i++ {
		var id ID
		id[0] = byte(i + 1)
		rt.Observe(Peer{ID: id, Addr: "addr"})
	}
	closest := rt.Closest(self, 3)
	if len(closest) != 3 {
		t.Fatalf("Closest returned %d peers, want 3", len(closest))
	}
}

func TestFetchDeduplication(t *testing.T) {
	ft := overlaytest.New()
	stored := makeStoredBlock(t)

	node := newTestNode(1, ft)
	peerNode := newTestNode(2, ft)
	node.Announce(peerNode.Self, "peerA")
	ft.Register("peerA", func(req Message) Message {
		if req.Kind == KindRequestBlock && req.RequestBlockUUID == stored.UUID {
			return Message{Kind: KindResponseBlock, ResponseBlockFound: true, ResponseBlock: stored}
		}
		return Message{Kind: KindResponseBlock, ResponseBlockFound: false}
	})

	var wg sync.WaitGroup
	results := make([]*block.DataBlock, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = node.Fetch(context.Background(), stored.UUID)
		}()
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Fetch[%d]: %v", i, errs[i])
		}
		if results[i].UUID != stored.UUID {
			t.Fatalf("Fetch[%d] returned wrong uuid", i)
		}
	}
	if got := ft.RequestCount(KindRequestBlock); got != 1 {
		t.Fatalf("RequestBlock sent %d times, want 1 (de-duplicated)", got)
	}
}

func TestFetchNotFoundAfterExhaustingCandidates(t *testing.T) {
	ft := overlaytest.New()
	node := newTestNode(1, ft)
	var missingUUID block.UUID
	missingUUID[0] = 0xAB

	_, err := node.Fetch(context.Background(), missingUUID)
	if err != ErrNotFound {
		t.Fatalf("Fetch with no candidates = %v, want ErrNotFound", err)
	}
}

func TestFetchDetectsCorruption(t *testing.T) {
	ft := overlaytest.New()
	stored := makeStoredBlock(t)
	tampered := *stored
	tampered.UUID[0] ^= 0xFF // a peer returning a mismatched uuid signals corruption

	node := newTestNode(1, ft)
	node.Announce(ID{2}, "peerA")
	ft.Register("peerA", func(req Message) Message {
		return Message{Kind: KindResponseBlock, ResponseBlockFound: true, ResponseBlock: &tampered}
	})

	// A peer returning a mismatched uuid is treated as corruption; once
	// the single candidate is exhausted, fetchOnce reports ErrNotFound.
	_, err := node.Fetch(context.Background(), stored.UUID)
	if err == nil {
		t.Fatal("Fetch with a corrupted response succeeded, want an error")
	}
}

func TestReplicateCountsAcks(t *testing.T) {
	ft := overlaytest.New()
	node := newTestNode(1, ft)

	var acked int32
	var mu sync.Mutex
	for i := byte(2); i < 5; i++ {
		var id ID
		id[31] = i
		addr := string(rune('A' + i))
		node.Announce(id, addr)
		ft.Register(addr, func(req Message) Message {
			mu.Lock()
			acked++
			mu.Unlock()
			return Message{Kind: KindStoreAck, StoreAckUUID: req.StoreBlock.UUID, StoreAckOK: true}
		})
	}
	node.ReplicationFactor = 3

	b := makeStoredBlock(t)
	if err := node.Replicate(context.Background(), b); err != nil {
		t.Fatalf("Replicate: %v", err)
	}
	if acked < 2 {
		t.Fatalf("only %d peers saw StoreBlock, want at least ceil(3/2)=2", acked)
	}
}

func TestReplicateDegradedWhenAcksShortfall(t *testing.T) {
	ft := overlaytest.New()
	node := newTestNode(1, ft)
	node.ReplicationFactor = 3

	var id ID
	id[31] = 9
	node.Announce(id, "onlyPeer")
	ft.Register("onlyPeer", func(req Message) Message {
		return Message{Kind: KindStoreAck, StoreAckUUID: req.StoreBlock.UUID, StoreAckOK: false}
	})

	b := makeStoredBlock(t)
	if err := node.Replicate(context.Background(), b); err != ErrNetDegraded {
		t.Fatalf("Replicate = %v, want ErrNetDegraded", err)
	}
}

func TestWireMessageRoundTrip(t *testing.T) {
	b := makeStoredBlock(t)
	var buf bytes.Buffer
	msg := Message{Kind: KindStoreBlock, StoreBlock: b}
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.StoreBlock.UUID != b.UUID {
		t.Fatalf("round trip uuid mismatch")
	}
}

func TestWireMessageUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 1, 0xFF})
	if _, err := ReadMessage(&buf); err != ErrUnknownKind {
		t.Fatalf("ReadMessage(unknown kind) = %v, want ErrUnknownKind", err)
	}
}

func TestPeerTableReputationFloor(t *testing.T) {
	pt := NewPeerTable()
	var id ID
	id[0] = 1
	pt.Upsert(id, "addr")
	for i := 0; i < 30; i++ {
		pt.OnCorrupt(id)
	}
	p, _ := pt.Get(id)
	if p.Reputation >= ReputationFloor {
		t.Fatalf("reputation = %d, want below floor %d after repeated corruption", p.Reputation, ReputationFloor)
	}
}
