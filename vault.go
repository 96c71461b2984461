// Package vault implements a decentralized, content-addressed, encrypted
// block store exposed as a virtual file system. Files are sharded into
// DataBlocks (nibble-split, Huffman-compressed, AES-256-GCM-sealed,
// backward-linked into a chain), tracked in a local path-keyed manifest,
// and replicated across a Kademlia-style peer overlay.
package vault

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"

	"github.com/vaultnetwork/vault/block"
	"github.com/vaultnetwork/vault/metrics"
	"github.com/vaultnetwork/vault/overlay"
	"github.com/vaultnetwork/vault/store"
	"github.com/vaultnetwork/vault/vfs"
	"golang.org/x/xerrors"
)

// Node is one running vault instance: local storage, the peer overlay, the
// VFS layer wired on top of both, and the node's own metrics. It is the
// root package's sole exported type besides Config and the error
// vocabulary — every operation in spec.md §6 is a method on Node.
type Node struct {
	cfg *Config
	log *log.Logger

	store   *store.Store
	overlay *overlay.Node
	vfs     *vfs.VFS
	metrics *metrics.Collector

	listener  *overlay.Listener
	discovery *overlay.Discovery
	cancel    context.CancelFunc
}

// Start brings up a Node: opens (or creates) the on-disk layout, derives
// the node's overlay identity, binds the transport listener, optionally
// starts mDNS discovery, dials any configured bootstrap peers, and kicks
// off a background replication-queue drain. The returned Node is ready to
// serve WriteFile/ReadFile/... immediately; Shutdown releases everything
// Start acquired.
func Start(ctx context.Context, cfg *Config) (*Node, error) {
	cfg = cfg.withDefaults()

	logger := log.Default()

	s, err := store.New(cfg.DataDir, logger)
	if err != nil {
		return nil, xerrors.Errorf("vault: start: open store: %w", err)
	}

	self := deriveIdentity(cfg.IdentityKey)

	transport := overlay.NewNetTransport()
	onode := overlay.NewNode(self, transport)
	onode.Log = logger
	onode.ReplicationFactor = cfg.ReplicationFactor
	onode.FetchPeerTimeout = FetchPeerTimeout
	onode.FetchTotalTimeout = FetchTotalTimeout
	onode.ReplicateTimeout = ReplicateTimeout
	onode.LookupTimeout = LookupTimeout

	m := metrics.New()
	onode.Metrics = m

	listener, err := overlay.Listen(fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, xerrors.Errorf("vault: start: listen: %w", err)
	}
	localGet := func(uuid block.UUID) (*block.DataBlock, bool) {
		b, err := s.GetBlock(uuid)
		if err != nil {
			return nil, false
		}
		return b, true
	}
	go listener.Serve(func(req overlay.Message) overlay.Message {
		return onode.HandleRequest(req, localGet, s.PutBlock)
	})

	v := vfs.New(s, onode, cfg.ChunkSize, m, logger)

	nodeCtx, cancel := context.WithCancel(ctx)
	n := &Node{
		cfg:      cfg,
		log:      logger,
		store:    s,
		overlay:  onode,
		vfs:      v,
		metrics:  m,
		listener: listener,
		cancel:   cancel,
	}

	for _, addr := range cfg.BootstrapPeers {
		n.AddPeer(addr)
	}

	if cfg.DiscoveryMulticast {
		disc, err := overlay.StartDiscovery(nodeCtx, self, listener.Port(), logger, func(id overlay.ID, addr string) {
			onode.Announce(id, addr)
		})
		if err != nil {
			logger.Printf("vault: start: discovery disabled: %v", err)
		} else {
			n.discovery = disc
		}
	}

	go func() {
		if err := v.DrainReplicationQueue(nodeCtx); err != nil {
			logger.Printf("vault: initial replication drain: %v", err)
		}
	}()

	return n, nil
}

// deriveIdentity turns raw identity key material into a routing ID. A nil
// key gets an ephemeral process-lifetime identity.
func deriveIdentity(key []byte) overlay.ID {
	if len(key) == 0 {
		id, err := overlay.RandomID()
		if err != nil {
			// crypto/rand failing is not something a caller can usefully
			// recover from; spec.md has no "identity unavailable" error
			// kind, so this is the one place vault panics.
			panic(xerrors.Errorf("vault: generate ephemeral identity: %w", err))
		}
		return id
	}
	return overlay.IDFromKey(key)
}

// Shutdown cancels the node's context, which the background replication
// drain started by Start observes, and stops discovery and the listener.
// It does not wait for in-flight goroutines to exit. It does not flush
// local storage — every write is already durable when it returns to the
// caller.
func (n *Node) Shutdown(ctx context.Context) error {
	n.cancel()
	if n.discovery != nil {
		n.discovery.Shutdown()
	}
	if n.listener != nil {
		return n.listener.Close()
	}
	return nil
}

// WriteFile implements spec.md §4.6's write(path, bytes)/§6's WriteFile.
func (n *Node) WriteFile(ctx context.Context, path string, data []byte, progress chan<- vfs.Progress) error {
	_, _, err := n.vfs.Write(ctx, path, data, progress)
	return translateErr(err)
}

// ReadFile implements spec.md §4.6's read(path)/§6's ReadFile.
func (n *Node) ReadFile(ctx context.Context, path string, progress chan<- vfs.Progress) ([]byte, error) {
	data, err := n.vfs.Read(ctx, path, progress)
	return data, translateErr(err)
}

// DeleteFile implements spec.md §4.6's delete(path)/§6's DeleteFile.
func (n *Node) DeleteFile(ctx context.Context, path string) error {
	return translateErr(n.vfs.Delete(ctx, path))
}

// ListFiles implements spec.md §4.6's list()/§6's ListFiles.
func (n *Node) ListFiles() ([]store.FileMetadata, error) {
	files, err := n.vfs.List()
	return files, translateErr(err)
}

// BlockInfo implements §6's BlockInfo(uuid): identity and size of a single
// block, without decrypting or decompressing it.
func (n *Node) BlockInfo(uuid [16]byte) (vfs.BlockInfo, error) {
	info, err := n.vfs.BlockInfo(uuid)
	return info, translateErr(err)
}

// Addr reports the "host:port" the overlay transport is listening on, for
// wiring a peer's AddPeer call or a bootstrap config in tests and
// multi-node deployments.
func (n *Node) Addr() string {
	return n.listener.Addr()
}

// VFS exposes the node's underlying VFS layer, for adapters like
// vfs/vaultfs that need to mount it directly rather than go through the
// thinner WriteFile/ReadFile façade methods.
func (n *Node) VFS() *vfs.VFS {
	return n.vfs
}

// AddPeer registers a known peer address, the explicit counterpart to
// mDNS auto-discovery — used both by CLI-driven manual peering and by
// Start's BootstrapPeers handling. The peer's routing ID is SHA-256 of its
// advertised address; no handshake replaces it with an ID derived from the
// peer's identity key. This is sufficient for Kademlia bucket placement,
// since address and ID need not be cryptographically bound for routing
// purposes (only block/manifest content is authenticated).
func (n *Node) AddPeer(addr string) {
	id := overlay.ID(sha256.Sum256([]byte(addr)))
	n.overlay.Announce(id, addr)
}

// ListPeers implements §6's ListPeers: every peer currently known to the
// overlay, including its reputation score.
func (n *Node) ListPeers() []overlay.Peer {
	return n.overlay.Peers.All()
}

// Metrics implements §6's Metrics: a point-in-time snapshot of request,
// storage, and peer counters. Request counters are updated live as the
// overlay issues requests; the gauges (blocks held, bytes stored, peers
// known) are cheap to recompute and are refreshed here rather than on
// every PutBlock/Announce.
func (n *Node) Metrics() metrics.Snapshot {
	if count, err := n.store.BlockCount(); err == nil {
		n.metrics.SetBlocksLocal(count)
	}
	if files, err := n.vfs.List(); err == nil {
		var total int64
		for _, f := range files {
			total += f.Size
		}
		n.metrics.SetBytesStored(total)
	}
	n.metrics.SetPeersConnected(len(n.overlay.Peers.All()))
	return n.metrics.Snapshot()
}

// translateErr projects a component-level error (block.Err*, store.Err*,
// overlay.Err*, vfs.Err*) into the root package's Corrupted | Unavailable |
// NotFound | Io | Cancelled vocabulary per spec.md §7. Component sentinels
// stay package-local (see DESIGN.md) precisely so this is the one place
// that vocabulary gets collapsed.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case xerrors.Is(err, context.Canceled), xerrors.Is(err, context.DeadlineExceeded):
		return xerrors.Errorf("%w: %v", ErrCancelled, err)
	case xerrors.Is(err, vfs.ErrNotFound), xerrors.Is(err, store.ErrNotFound), xerrors.Is(err, overlay.ErrNotFound):
		return xerrors.Errorf("%w: %v", ErrNotFound, err)
	case xerrors.Is(err, vfs.ErrCorrupted):
		return xerrors.Errorf("%w: %v", ErrCorrupted, err)
	case xerrors.Is(err, vfs.ErrUnavailable), xerrors.Is(err, overlay.ErrNetDegraded), xerrors.Is(err, overlay.ErrTimeout):
		return xerrors.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return xerrors.Errorf("%w: %v", ErrIo, err)
	}
}
