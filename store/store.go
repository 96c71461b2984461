package store

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"log"
	"os"
	"sync"

	"github.com/google/renameio"
	"github.com/vaultnetwork/vault/block"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned by GetBlock on a local miss.
var ErrNotFound = xerrors.New("store: not found")

const shardCount = 32

// Store is the durable block, manifest, and metadata persistence layer
// for one node. Block access is mediated by a 32-way sharded
// sync.RWMutex keyed by uuid — generalising the single fs.mu guarding the
// teacher's inode table into one lock per shard, since many independent
// uuids are read and written concurrently and a single global lock would
// serialise unrelated I/O.
type Store struct {
	Layout Layout
	Log    *log.Logger

	shards  [shardCount]sync.RWMutex
	manifMu sync.RWMutex
}

// New opens (creating if absent) the block store rooted at dataDir.
func New(dataDir string, logger *log.Logger) (*Store, error) {
	l := NewLayout(dataDir)
	if err := l.EnsureDirs(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{Layout: l, Log: logger}, nil
}

func (s *Store) shard(uuid [16]byte) *sync.RWMutex {
	h := fnv.New32a()
	h.Write(uuid[:])
	return &s.shards[h.Sum32()%shardCount]
}

// PutBlock idempotently persists b, write-temp-then-rename.
func (s *Store) PutBlock(b *block.DataBlock) error {
	mu := s.shard(b.UUID)
	mu.Lock()
	defer mu.Unlock()

	raw, err := SerializeBlock(b)
	if err != nil {
		return err
	}
	dest := s.Layout.BlockPath(b.UUID)
	f, err := renameio.TempFile("", dest)
	if err != nil {
		return err
	}
	defer f.Cleanup()
	if _, err := f.Write(raw); err != nil {
		return err
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return fsyncDir(s.Layout.BlocksDir())
}

// GetBlock returns the block stored under uuid, or ErrNotFound on a
// local miss.
func (s *Store) GetBlock(uuid [16]byte) (*block.DataBlock, error) {
	mu := s.shard(uuid)
	mu.RLock()
	defer mu.RUnlock()

	raw, err := os.ReadFile(s.Layout.BlockPath(uuid))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return DeserializeBlock(raw)
}

// HasBlock reports whether uuid is present locally, without decoding it.
func (s *Store) HasBlock(uuid [16]byte) bool {
	mu := s.shard(uuid)
	mu.RLock()
	defer mu.RUnlock()
	_, err := os.Stat(s.Layout.BlockPath(uuid))
	return err == nil
}

// DeleteBlock removes the local copy of uuid. Deleting an absent block
// is not an error (tombstoning is idempotent).
func (s *Store) DeleteBlock(uuid [16]byte) error {
	mu := s.shard(uuid)
	mu.Lock()
	defer mu.Unlock()
	err := os.Remove(s.Layout.BlockPath(uuid))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadManifest returns the current path → FileMetadata map.
func (s *Store) LoadManifest() (map[string]FileMetadata, error) {
	s.manifMu.RLock()
	defer s.manifMu.RUnlock()
	return s.Layout.LoadManifest()
}

// SaveManifest durably overwrites the entire manifest document.
func (s *Store) SaveManifest(entries map[string]FileMetadata) error {
	s.manifMu.Lock()
	defer s.manifMu.Unlock()
	return s.Layout.SaveManifest(entries)
}

// MutateManifest loads the manifest, lets fn mutate it in place, and
// saves the result, all under one lock — the read-modify-write unit
// vfs needs so a write to one path never clobbers a concurrent write to
// a different path racing between a bare LoadManifest and SaveManifest.
func (s *Store) MutateManifest(fn func(map[string]FileMetadata) error) error {
	s.manifMu.Lock()
	defer s.manifMu.Unlock()
	entries, err := s.Layout.LoadManifest()
	if err != nil {
		return err
	}
	if err := fn(entries); err != nil {
		return err
	}
	return s.Layout.SaveManifest(entries)
}

// PathHash is the key metadata.json files are named by: SHA-256 of the
// path string.
func PathHash(path string) [32]byte {
	return sha256.Sum256([]byte(path))
}

// BlockCount returns the number of blocks currently held locally, for
// metrics.Collector.SetBlocksLocal.
func (s *Store) BlockCount() (int, error) {
	entries, err := os.ReadDir(s.Layout.BlocksDir())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, de := range entries {
		if !de.IsDir() {
			n++
		}
	}
	return n, nil
}

// CleanupOrphans walks every manifest entry's chain locally (following
// previous_uuid links) to build the reachable set, lists blocks/*.block,
// and deletes the set difference. It mirrors the teacher's
// directory-scan-and-diff style in findPackages, generalised from
// package names to block uuids.
func (s *Store) CleanupOrphans() (deleted int, err error) {
	entries, err := s.LoadManifest()
	if err != nil {
		return 0, err
	}

	reachable := make(map[[16]byte]struct{})
	for _, meta := range entries {
		uuid := meta.FirstBlockUUID
		for {
			reachable[uuid] = struct{}{}
			b, err := s.GetBlock(uuid)
			if err != nil {
				// Not locally present (or unreadable): the chain may
				// continue on a peer, but we can't walk further locally.
				// Nothing past this point can be marked reachable by us,
				// so stop without error.
				break
			}
			if b.PreviousUUID == block.None {
				break
			}
			uuid = b.PreviousUUID
		}
	}

	dirEntries, err := os.ReadDir(s.Layout.BlocksDir())
	if err != nil {
		return 0, err
	}
	for _, de := range dirEntries {
		name := de.Name()
		if len(name) < len(blockExt) || name[len(name)-len(blockExt):] != blockExt {
			continue
		}
		hexPart := name[:len(name)-len(blockExt)]
		decoded, err := hex.DecodeString(hexPart)
		if err != nil || len(decoded) != 16 {
			continue
		}
		var uuid [16]byte
		copy(uuid[:], decoded)
		if _, ok := reachable[uuid]; ok {
			continue
		}
		if err := s.DeleteBlock(uuid); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

