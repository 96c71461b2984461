package overlay

import (
	"context"
	"crypto/sha256"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/vaultnetwork/vault/block"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

var (
	ErrTimeout     = xerrors.New("overlay: timeout")
	ErrNotFound    = xerrors.New("overlay: block not found on any candidate peer")
	ErrCorrupted   = xerrors.New("overlay: fetched block failed hash verification")
	ErrNetDegraded = xerrors.New("overlay: replication below target acknowledgement count")
)

// Counters is the subset of metrics.Collector the overlay updates
// directly; kept as a narrow interface here so overlay has no import
// dependency on the metrics package (metrics depends downward on
// nothing, and the façade wires the two together).
type Counters interface {
	IncRequests()
	IncRequestsFailed()
}

// Node is one participant in the overlay: identity, known peers, routing
// table, and the four logical operations from spec.md §4.5.
type Node struct {
	Self      ID
	Transport Transport
	Peers     *PeerTable
	Routing   *RoutingTable
	Log       *log.Logger
	Metrics   Counters // may be nil

	ReplicationFactor int
	LookupTimeout     time.Duration
	FetchPeerTimeout  time.Duration
	FetchTotalTimeout time.Duration
	ReplicateTimeout  time.Duration

	waitersMu sync.Mutex
	waiters   map[block.UUID]*fetchWaiter
}

type fetchWaiter struct {
	done chan struct{}
	data *block.DataBlock
	err  error
}

func NewNode(self ID, transport Transport) *Node {
	return &Node{
		Self:              self,
		Transport:         transport,
		Peers:             NewPeerTable(),
		Routing:           NewRoutingTable(self),
		Log:               log.Default(),
		ReplicationFactor: 3,
		LookupTimeout:     5 * time.Second,
		FetchPeerTimeout:  3 * time.Second,
		FetchTotalTimeout: 15 * time.Second,
		ReplicateTimeout:  10 * time.Second,
		waiters:           make(map[block.UUID]*fetchWaiter),
	}
}

// Announce registers a peer in the routing table and peer directory —
// the local side-effect of either a discovery event or an explicit
// add_peer call.
func (n *Node) Announce(id ID, addr string) {
	p := n.Peers.Upsert(id, addr)
	n.Routing.Observe(*p)
}

// blockKey maps a block uuid into the shared 256-bit ID space peer IDs
// live in, so XOR distance is meaningful between blocks and peers.
func blockKey(uuid block.UUID) ID {
	return ID(sha256.Sum256(uuid[:]))
}

// Lookup returns the k closest known peers to uuid's key, per spec.md
// §4.5. It terminates immediately with whatever the routing table
// already holds — the bucket structure is kept fresh by Announce, so
// there is no separate round-trip "find_node" phase to run here.
func (n *Node) Lookup(ctx context.Context, uuid block.UUID, k int) []Peer {
	return n.Routing.Closest(blockKey(uuid), k)
}

// Fetch retrieves uuid's bytes, contacting lookup candidates in distance
// order. Concurrent Fetch calls for the same uuid are de-duplicated: the
// first caller performs the network operation, late callers await its
// result.
func (n *Node) Fetch(ctx context.Context, uuid block.UUID) (*block.DataBlock, error) {
	n.waitersMu.Lock()
	if w, ok := n.waiters[uuid]; ok {
		n.waitersMu.Unlock()
		<-w.done
		return w.data, w.err
	}
	w := &fetchWaiter{done: make(chan struct{})}
	n.waiters[uuid] = w
	n.waitersMu.Unlock()

	b, err := n.fetchOnce(ctx, uuid)

	n.waitersMu.Lock()
	delete(n.waiters, uuid)
	n.waitersMu.Unlock()

	w.data, w.err = b, err
	close(w.done)
	return b, err
}

func (n *Node) fetchOnce(ctx context.Context, uuid block.UUID) (*block.DataBlock, error) {
	ctx, cancel := context.WithTimeout(ctx, n.FetchTotalTimeout)
	defer cancel()

	candidates := n.Lookup(ctx, uuid, BucketSize)
	for _, peer := range candidates {
		b, err := n.requestFromPeer(ctx, peer, uuid)
		if err == nil {
			n.Peers.OnSuccess(peer.ID)
			return b, nil
		}
		if xerrors.Is(err, ErrCorrupted) {
			n.Peers.OnCorrupt(peer.ID)
		} else {
			n.Peers.OnTimeout(peer.ID)
		}
		if n.Metrics != nil {
			n.Metrics.IncRequestsFailed()
		}
	}
	return nil, ErrNotFound
}

func (n *Node) requestFromPeer(ctx context.Context, peer Peer, uuid block.UUID) (*block.DataBlock, error) {
	peerCtx, cancel := context.WithTimeout(ctx, n.FetchPeerTimeout)
	defer cancel()

	var result *block.DataBlock
	op := func() error {
		if n.Metrics != nil {
			n.Metrics.IncRequests()
		}
		resp, err := n.Transport.Send(peerCtx, peer.Addr, Message{
			Kind:             KindRequestBlock,
			RequestBlockUUID: uuid,
		})
		if err != nil {
			return err
		}
		if resp.Kind != KindResponseBlock || !resp.ResponseBlockFound {
			return ErrNotFound
		}
		if resp.ResponseBlock.UUID != uuid {
			return ErrCorrupted
		}
		result = resp.ResponseBlock
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.Multiplier = 2
	eb.MaxInterval = 5 * time.Second
	eb.RandomizationFactor = 0.2
	retry := backoff.WithMaxRetries(eb, 4) // first attempt plus 4 retries: 5 attempts

	if err := backoff.Retry(op, backoff.WithContext(retry, peerCtx)); err != nil {
		if xerrors.Is(err, ErrCorrupted) {
			return nil, ErrCorrupted
		}
		return nil, ErrTimeout
	}
	return result, nil
}

// Replicate publishes b to the N closest peers (N = ReplicationFactor).
// It succeeds once at least ceil(N/2) acknowledgements are received
// within ReplicateTimeout; a shortfall is reported as ErrNetDegraded but
// is not a hard failure (per spec.md §4.5 and §7, replication is
// best-effort and never blocks a write's local success).
func (n *Node) Replicate(ctx context.Context, b *block.DataBlock) error {
	ctx, cancel := context.WithTimeout(ctx, n.ReplicateTimeout)
	defer cancel()

	targets := n.Routing.Closest(blockKey(b.UUID), n.ReplicationFactor)
	if len(targets) == 0 {
		return ErrNetDegraded
	}

	var mu sync.Mutex
	acked := 0
	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range targets {
		peer := peer
		g.Go(func() error {
			if n.Peers.lowReputation(peer) {
				return nil
			}
			resp, err := n.Transport.Send(gctx, peer.Addr, Message{Kind: KindStoreBlock, StoreBlock: b})
			if err != nil {
				n.Peers.OnTimeout(peer.ID)
				return nil
			}
			if resp.Kind == KindStoreAck && resp.StoreAckOK {
				n.Peers.OnSuccess(peer.ID)
				mu.Lock()
				acked++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	need := (n.ReplicationFactor + 1) / 2
	if acked < need {
		n.Log.Printf("overlay: replicate(%x): only %d/%d peers acked (wanted >=%d)", b.UUID, acked, len(targets), need)
		return ErrNetDegraded
	}
	return nil
}

// lowReputation reports whether p is below the floor that excludes it
// from replicate targeting (it is still queried by fetch).
func (t *PeerTable) lowReputation(p Peer) bool {
	current, ok := t.Get(p.ID)
	if !ok {
		return false
	}
	return current.Reputation < ReputationFloor
}

// HandleRequest serves one inbound wire message, the Node-side of
// Listener.Serve. localGet resolves a uuid to bytes from local storage
// (nil, false on miss); storeBlock persists an inbound StoreBlock.
func (n *Node) HandleRequest(req Message, localGet func(block.UUID) (*block.DataBlock, bool), storeBlock func(*block.DataBlock) error) Message {
	switch req.Kind {
	case KindRequestBlock:
		if b, ok := localGet(req.RequestBlockUUID); ok {
			return Message{Kind: KindResponseBlock, ResponseBlockFound: true, ResponseBlock: b}
		}
		return Message{Kind: KindResponseBlock, ResponseBlockFound: false}
	case KindStoreBlock:
		err := storeBlock(req.StoreBlock)
		return Message{Kind: KindStoreAck, StoreAckUUID: req.StoreBlock.UUID, StoreAckOK: err == nil}
	case KindPing:
		return Message{Kind: KindPong, PeerID: n.Self}
	default:
		return Message{Kind: KindResponseBlock, ResponseBlockFound: false}
	}
}
