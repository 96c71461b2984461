package overlay

import "sync"

// BucketSize (k) is the maximum number of peers held per k-bucket.
const BucketSize = 20

const numBuckets = 256 // one bucket per possible leading-zero-bit count in a 256-bit ID

// RoutingTable is a classic Kademlia k-bucket table: bucket i holds peers
// whose XOR distance from Self has i leading zero bits, i.e. peers that
// share the first i bits of Self's ID. Lookups rank across the buckets
// nearest the target rather than doing a linear scan of every known
// peer, which is what makes routing scale as the network grows.
type RoutingTable struct {
	Self ID

	mu      sync.Mutex
	buckets [numBuckets][]Peer
}

func NewRoutingTable(self ID) *RoutingTable {
	return &RoutingTable{Self: self}
}

func (rt *RoutingTable) bucketIndex(id ID) int {
	idx := leadingZeroBits(Distance(rt.Self, id))
	if idx >= numBuckets {
		idx = numBuckets - 1
	}
	return idx
}

// Observe records contact with a peer, moving it to the most-recently-seen
// end of its bucket (Kademlia's least-recently-seen eviction policy:
// once a bucket is full, the oldest entry is evicted only if it turns out
// to be unreachable — here simplified to straightforward LRU replacement,
// since the overlay has no separate liveness-ping path for evicted
// entries).
func (rt *RoutingTable) Observe(p Peer) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	idx := rt.bucketIndex(p.ID)
	bucket := rt.buckets[idx]
	for i, existing := range bucket {
		if existing.ID == p.ID {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	bucket = append(bucket, p)
	if len(bucket) > BucketSize {
		bucket = bucket[len(bucket)-BucketSize:]
	}
	rt.buckets[idx] = bucket
}

// Closest returns up to k peers nearest target, gathered from the bucket
// target would fall into and, if that bucket is short, its neighbours —
// the standard Kademlia bucket-expansion lookup.
func (rt *RoutingTable) Closest(target ID, k int) []Peer {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	center := rt.bucketIndex(target)
	var candidates []Peer
	for radius := 0; radius < numBuckets && len(candidates) < k; radius++ {
		if i := center - radius; i >= 0 {
			candidates = append(candidates, rt.buckets[i]...)
		}
		if radius > 0 {
			if i := center + radius; i < numBuckets {
				candidates = append(candidates, rt.buckets[i]...)
			}
		}
	}

	dist := make([]ID, len(candidates))
	for i, p := range candidates {
		dist[i] = Distance(target, p.ID)
	}
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && Less(dist[j], dist[j-1]); j-- {
			dist[j], dist[j-1] = dist[j-1], dist[j]
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}
