// Package vfs implements the file↔chain mapping: the write pipeline that
// shards a file into a backward-linked chain of blocks, and the read
// pipeline that walks a chain (local-first, overlay-fallback) and
// reassembles the original bytes.
package vfs

import (
	"context"
	"crypto/sha256"
	"log"
	"mime"
	"path/filepath"
	"sync"
	"time"

	"github.com/vaultnetwork/vault/block"
	"github.com/vaultnetwork/vault/metrics"
	"github.com/vaultnetwork/vault/overlay"
	"github.com/vaultnetwork/vault/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

var (
	ErrNotFound    = xerrors.New("vfs: not found")
	ErrCorrupted   = xerrors.New("vfs: corrupted")
	ErrUnavailable = xerrors.New("vfs: unavailable")
)

// VFS shards files into block.DataBlock chains, persists and replicates
// them, and reassembles them on read. One VFS is owned by one Node.
type VFS struct {
	Store     *store.Store
	Overlay   *overlay.Node // may be nil: a lone node with no peers still works locally
	ChunkSize int
	Metrics   *metrics.Collector // may be nil
	Log       *log.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(s *store.Store, node *overlay.Node, chunkSize int, m *metrics.Collector, logger *log.Logger) *VFS {
	if logger == nil {
		logger = log.Default()
	}
	return &VFS{
		Store:     s,
		Overlay:   node,
		ChunkSize: chunkSize,
		Metrics:   m,
		Log:       logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// pathLock returns the per-path mutex, generalising the teacher's
// sync.Locker-parameterised scan functions (which accept a shared
// nopLocker when no serialisation is needed) to one real *sync.Mutex per
// path, since concurrent writers to the SAME path must serialise while
// writers to different paths must not contend at all.
func (v *VFS) pathLock(path string) *sync.Mutex {
	v.locksMu.Lock()
	defer v.locksMu.Unlock()
	mu, ok := v.locks[path]
	if !ok {
		mu = &sync.Mutex{}
		v.locks[path] = mu
	}
	return mu
}

func chunkCount(size, chunkSize int64) int {
	if size == 0 {
		return 1
	}
	n := size / chunkSize
	if size%chunkSize != 0 {
		n++
	}
	return int(n)
}

// Write implements spec.md §4.6's write(path, bytes). progress may be
// nil. On success it returns the head block's uuid and the chain length.
func (v *VFS) Write(ctx context.Context, path string, data []byte, progress chan<- Progress) (headUUID [16]byte, blockCount int, err error) {
	mu := v.pathLock(path)
	mu.Lock()
	defer mu.Unlock()

	emitter := newProgressEmitter(progress, path, int64(len(data)))
	start := time.Now()
	defer func() {
		emitter.Finish(err)
	}()

	n := chunkCount(int64(len(data)), int64(v.ChunkSize))

	var prevUUID block.UUID
	var prevHash block.Hash
	var headBlock *block.DataBlock

	for idx := 0; idx < n; idx++ {
		select {
		case <-ctx.Done():
			return block.UUID{}, 0, ctx.Err()
		default:
		}

		// idx is the ascending node_index; j is the descending index
		// into file-order chunks, so node_index 0 (tail) is the LAST
		// chunk of the file and node_index n-1 (head) is the first.
		j := n - 1 - idx
		lo := j * v.ChunkSize
		hi := lo + v.ChunkSize
		if hi > len(data) {
			hi = len(data)
		}
		chunk := data[lo:hi]

		uuid, err := block.NewUUID()
		if err != nil {
			return block.UUID{}, 0, xerrors.Errorf("vfs: write %q: %w", path, err)
		}
		b, err := block.Encode(chunk, block.Link{
			UUID:         uuid,
			NodeIndex:    uint64(idx),
			HasPrevious:  idx > 0,
			PreviousUUID: prevUUID,
			PreviousHash: prevHash,
		})
		if err != nil {
			return block.UUID{}, 0, xerrors.Errorf("vfs: write %q: encode block %d: %w", path, idx, err)
		}
		if err := v.Store.PutBlock(b); err != nil {
			return block.UUID{}, 0, xerrors.Errorf("vfs: write %q: persist block %d: %w", path, idx, err)
		}
		if err := v.Store.EnqueueReplication(uuid); err != nil {
			v.Log.Printf("vfs: write %q: enqueue replication for block %d: %v", path, idx, err)
		}
		v.replicateBestEffort(b)

		prevUUID = uuid
		prevHash = block.CanonicalHash(b)
		headBlock = b

		elapsed := time.Since(start).Nanoseconds()
		emitter.Advance(int64(len(chunk)), elapsed)
	}

	meta := store.FileMetadata{
		Path:           path,
		FirstBlockUUID: headBlock.UUID,
		Size:           int64(len(data)),
		BlockCount:     n,
		CreatedAt:      time.Now().UTC(),
		ModifiedAt:     time.Now().UTC(),
		Extension:      filepath.Ext(path),
		MimeType:       mime.TypeByExtension(filepath.Ext(path)),
	}
	contentHash := sha256.Sum256(data)
	meta.ContentHash = &contentHash

	if err := v.Store.MutateManifest(func(entries map[string]store.FileMetadata) error {
		if existing, ok := entries[path]; ok {
			meta.CreatedAt = existing.CreatedAt
		}
		entries[path] = meta
		return nil
	}); err != nil {
		return block.UUID{}, 0, xerrors.Errorf("vfs: write %q: save manifest: %w", path, err)
	}

	return headBlock.UUID, n, nil
}

// replicateBestEffort fires off an async replication attempt for a
// freshly-written block. Failure is logged only: per spec.md §4.6/§7,
// replication is never fatal to a write, and the persisted
// replicate_queue entry lets a later background drain retry it.
func (v *VFS) replicateBestEffort(b *block.DataBlock) {
	if v.Overlay == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.Overlay.ReplicateTimeout)
		defer cancel()
		if err := v.Overlay.Replicate(ctx, b); err != nil {
			v.Log.Printf("vfs: replicate %x: %v", b.UUID, err)
			return
		}
		if err := v.Store.DequeueReplication(b.UUID); err != nil {
			v.Log.Printf("vfs: dequeue replication %x: %v", b.UUID, err)
		}
	}()
}

// DrainReplicationQueue re-attempts replication for every block still
// queued, e.g. on startup or on a periodic ticker — the durable
// counterpart to replicateBestEffort's fire-and-forget attempt.
func (v *VFS) DrainReplicationQueue(ctx context.Context) error {
	if v.Overlay == nil {
		return nil
	}
	pending, err := v.Store.PendingReplication()
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, uuid := range pending {
		uuid := uuid
		g.Go(func() error {
			b, err := v.Store.GetBlock(uuid)
			if err != nil {
				// no longer present locally; drop the marker
				return v.Store.DequeueReplication(uuid)
			}
			if err := v.Overlay.Replicate(gctx, b); err != nil {
				return nil
			}
			return v.Store.DequeueReplication(uuid)
		})
	}
	return g.Wait()
}

// Read implements spec.md §4.6's read(path) → bytes.
func (v *VFS) Read(ctx context.Context, path string, progress chan<- Progress) (data []byte, err error) {
	entries, err := v.Store.LoadManifest()
	if err != nil {
		return nil, err
	}
	meta, ok := entries[path]
	if !ok {
		return nil, ErrNotFound
	}

	emitter := newProgressEmitter(progress, path, meta.Size)
	start := time.Now()
	defer func() { emitter.Finish(err) }()

	chunks, err := v.walkChain(ctx, meta.FirstBlockUUID, emitter, start)
	if err != nil {
		return nil, err
	}

	// chunks is head-to-tail order, which is file byte order: Write puts
	// the file's first chunk in the head and its last chunk in the tail.
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

// walkChain walks a chain head→tail (resolving previous_uuid at each
// step), verifying the hash link and decoding each block, returning the
// plaintext chunks in the order visited (head-first).
func (v *VFS) walkChain(ctx context.Context, headUUID block.UUID, emitter *progressEmitter, start time.Time) ([][]byte, error) {
	var chunks [][]byte
	uuid := headUUID
	var expectedHash *block.Hash

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		b, err := v.resolveBlock(ctx, uuid)
		if err != nil {
			return nil, err
		}
		if expectedHash != nil && block.CanonicalHash(b) != *expectedHash {
			return nil, ErrCorrupted
		}

		plaintext, err := block.Decode(b)
		if err != nil {
			return nil, xerrors.Errorf("%w: %v", ErrCorrupted, err)
		}
		chunks = append(chunks, plaintext)
		emitter.Advance(int64(len(plaintext)), time.Since(start).Nanoseconds())

		if b.PreviousUUID == block.None {
			break
		}
		expectedHash = &b.PreviousHash
		uuid = b.PreviousUUID
	}
	return chunks, nil
}

// resolveBlock tries local storage first, falling back to the overlay
// fetch on a miss, per spec.md §4.6 step 2.
func (v *VFS) resolveBlock(ctx context.Context, uuid block.UUID) (*block.DataBlock, error) {
	b, err := v.Store.GetBlock(uuid)
	if err == nil {
		return b, nil
	}
	if !xerrors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if v.Overlay == nil {
		return nil, ErrUnavailable
	}
	b, err = v.Overlay.Fetch(ctx, uuid)
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrUnavailable, err)
	}
	// A block fetched from a peer is worth keeping locally too, so
	// subsequent reads (and this node's own replica count) don't depend
	// on the network again.
	if err := v.Store.PutBlock(b); err != nil {
		v.Log.Printf("vfs: cache fetched block %x: %v", uuid, err)
	}
	return b, nil
}

// Delete implements spec.md §4.6's delete(path): manifest removal plus
// local tombstone scheduling. Replicas on remote peers are never
// revoked.
func (v *VFS) Delete(ctx context.Context, path string) error {
	mu := v.pathLock(path)
	mu.Lock()
	defer mu.Unlock()

	var removed store.FileMetadata
	var found bool
	if err := v.Store.MutateManifest(func(entries map[string]store.FileMetadata) error {
		removed, found = entries[path]
		if !found {
			return ErrNotFound
		}
		delete(entries, path)
		return nil
	}); err != nil {
		return err
	}

	uuid := removed.FirstBlockUUID
	for i := 0; i < removed.BlockCount; i++ {
		b, err := v.Store.GetBlock(uuid)
		if err != nil {
			break
		}
		if err := v.Store.DeleteBlock(uuid); err != nil {
			v.Log.Printf("vfs: delete %q: tombstone block %x: %v", path, uuid, err)
		}
		if b.PreviousUUID == block.None {
			break
		}
		uuid = b.PreviousUUID
	}
	return nil
}

// List implements spec.md §4.6's list() → [path].
func (v *VFS) List() ([]store.FileMetadata, error) {
	entries, err := v.Store.LoadManifest()
	if err != nil {
		return nil, err
	}
	out := make([]store.FileMetadata, 0, len(entries))
	for _, m := range entries {
		out = append(out, m)
	}
	return out, nil
}

// BlockInfo reports a single block's identity and payload size without
// decoding it, per the façade's block_info(uuid) operation.
type BlockInfo struct {
	UUID      block.UUID
	NodeIndex uint64
	Size      int
}

func (v *VFS) BlockInfo(uuid block.UUID) (BlockInfo, error) {
	b, err := v.Store.GetBlock(uuid)
	if err != nil {
		return BlockInfo{}, err
	}
	return BlockInfo{UUID: b.UUID, NodeIndex: b.NodeIndex, Size: len(b.Payload)}, nil
}
