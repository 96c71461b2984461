package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vaultnetwork/vault/block"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func mustBlock(t *testing.T, nodeIndex uint64, hasPrev bool, prevUUID [16]byte, prevHash [32]byte) *block.DataBlock {
	t.Helper()
	uuid, err := block.NewUUID()
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	b, err := block.Encode([]byte("payload"), block.Link{
		UUID:         uuid,
		NodeIndex:    nodeIndex,
		HasPrevious:  hasPrev,
		PreviousUUID: prevUUID,
		PreviousHash: prevHash,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

func TestPutGetBlockRoundTrip(t *testing.T) {
	s := newTestStore(t)
	b := mustBlock(t, 0, false, block.UUID{}, block.Hash{})

	if err := s.PutBlock(b); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	got, err := s.GetBlock(b.UUID)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if diff := cmp.Diff(b, got); diff != "" {
		t.Fatalf("GetBlock mismatch (-want +got):\n%s", diff)
	}
}

func TestGetBlockMiss(t *testing.T) {
	s := newTestStore(t)
	var uuid block.UUID
	if _, err := s.GetBlock(uuid); err != ErrNotFound {
		t.Fatalf("GetBlock(miss) = %v, want ErrNotFound", err)
	}
}

func TestDeleteBlockIdempotent(t *testing.T) {
	s := newTestStore(t)
	b := mustBlock(t, 0, false, block.UUID{}, block.Hash{})
	if err := s.PutBlock(b); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if err := s.DeleteBlock(b.UUID); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	if err := s.DeleteBlock(b.UUID); err != nil {
		t.Fatalf("DeleteBlock (second call): %v", err)
	}
	if s.HasBlock(b.UUID) {
		t.Fatal("HasBlock after delete = true")
	}
}

func TestPutBlockNeverLeavesTornWrite(t *testing.T) {
	s := newTestStore(t)
	b := mustBlock(t, 0, false, block.UUID{}, block.Hash{})
	if err := s.PutBlock(b); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	entries, err := os.ReadDir(s.Layout.BlocksDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != blockExt {
			t.Fatalf("leftover temp file in blocks dir: %s", e.Name())
		}
	}
}

func TestManifestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	entries := map[string]FileMetadata{
		"/a.txt": {
			Path:       "/a.txt",
			Size:       5,
			BlockCount: 1,
			CreatedAt:  time.Unix(1000, 0).UTC(),
			ModifiedAt: time.Unix(1000, 0).UTC(),
		},
	}
	if err := s.SaveManifest(entries); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}
	got, err := s.LoadManifest()
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Fatalf("LoadManifest mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadManifestMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.LoadManifest()
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("LoadManifest on fresh dir = %v, want empty", got)
	}
}

func TestManifestSaveIdempotent(t *testing.T) {
	s := newTestStore(t)
	entries := map[string]FileMetadata{"/x": {Path: "/x", Size: 1, BlockCount: 1}}
	if err := s.SaveManifest(entries); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(s.Layout.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveManifest(entries); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(s.Layout.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatal("SaveManifest(SaveManifest(m)) produced different bytes")
	}
}

func TestCleanupOrphansDeletesUnreachableBlocks(t *testing.T) {
	s := newTestStore(t)

	tail := mustBlock(t, 0, false, block.UUID{}, block.Hash{})
	if err := s.PutBlock(tail); err != nil {
		t.Fatal(err)
	}
	head := mustBlock(t, 1, true, tail.UUID, block.CanonicalHash(tail))
	if err := s.PutBlock(head); err != nil {
		t.Fatal(err)
	}

	orphan := mustBlock(t, 0, false, block.UUID{}, block.Hash{})
	if err := s.PutBlock(orphan); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveManifest(map[string]FileMetadata{
		"/f": {Path: "/f", FirstBlockUUID: head.UUID, BlockCount: 2},
	}); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.CleanupOrphans()
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("CleanupOrphans deleted %d blocks, want 1", deleted)
	}
	if s.HasBlock(orphan.UUID) {
		t.Fatal("orphan block survived CleanupOrphans")
	}
	if !s.HasBlock(tail.UUID) || !s.HasBlock(head.UUID) {
		t.Fatal("CleanupOrphans deleted a reachable block")
	}
}

func TestReplicationQueuePersists(t *testing.T) {
	s := newTestStore(t)
	uuid, err := block.NewUUID()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueReplication(uuid); err != nil {
		t.Fatalf("EnqueueReplication: %v", err)
	}
	pending, err := s.PendingReplication()
	if err != nil {
		t.Fatalf("PendingReplication: %v", err)
	}
	if len(pending) != 1 || pending[0] != uuid {
		t.Fatalf("PendingReplication = %v, want [%v]", pending, uuid)
	}
	if err := s.DequeueReplication(uuid); err != nil {
		t.Fatalf("DequeueReplication: %v", err)
	}
	pending, err = s.PendingReplication()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("PendingReplication after dequeue = %v, want empty", pending)
	}
}
