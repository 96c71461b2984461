package vault

import (
	"time"

	"github.com/vaultnetwork/vault/internal/env"
)

// DefaultChunkSize is the number of plaintext bytes placed in each block
// when Config.ChunkSize is zero.
const DefaultChunkSize = 64 * 1024

// DefaultReplicationFactor is the number of peers targeted by replicate
// when Config.ReplicationFactor is zero.
const DefaultReplicationFactor = 3

// Config configures a Node. It is consumed once by Start; later mutation
// has no effect on a running Node. Callers that need to start multiple
// Nodes from a shared base should Clone the Config first, mirroring the
// teacher's Ctx.Clone convention for per-invocation configuration structs.
type Config struct {
	// Port is the local listen port for the overlay transport. 0 picks an
	// ephemeral port.
	Port int

	// DataDir is the root of the on-disk layout (blocks/, manifest.json,
	// metadata/). Created if absent. Defaults to env.DefaultDataDir.
	DataDir string

	// ReplicationFactor (N) is the number of peers targeted by replicate.
	ReplicationFactor int

	// ChunkSize is the number of plaintext bytes per block.
	ChunkSize int

	// BootstrapPeers are multiaddr-like "host:port" strings dialled on
	// startup to seed the overlay routing table.
	BootstrapPeers []string

	// DiscoveryMulticast enables local-network mDNS discovery.
	DiscoveryMulticast bool

	// LogLevel is one of trace/debug/info/warn/error, defaulting to
	// "info". It is carried on the Config only: neither Start nor the
	// reference CLI changes logging based on it.
	LogLevel string

	// IdentityKey is the raw key material for this node's long-lived
	// identity (signature + KEM keys). How it was derived (passphrase,
	// mnemonic, hardware token) is the shell's concern; the core only
	// consumes the bytes. Any non-empty key is hashed into the routing ID
	// (its length is not checked); an empty key generates an ephemeral
	// identity for the process lifetime.
	IdentityKey []byte
}

// Clone returns a deep-enough copy of c suitable for starting an
// independent Node (e.g. in tests that spin up several in-process nodes
// from one base Config).
func (c *Config) Clone() *Config {
	cc := *c
	cc.BootstrapPeers = append([]string(nil), c.BootstrapPeers...)
	cc.IdentityKey = append([]byte(nil), c.IdentityKey...)
	return &cc
}

func (c *Config) withDefaults() *Config {
	cc := c.Clone()
	if cc.DataDir == "" {
		cc.DataDir = env.DefaultDataDir
	}
	if cc.ReplicationFactor <= 0 {
		cc.ReplicationFactor = DefaultReplicationFactor
	}
	if cc.ChunkSize <= 0 {
		cc.ChunkSize = DefaultChunkSize
	}
	if cc.LogLevel == "" {
		cc.LogLevel = "info"
	}
	return cc
}

// Timeouts used throughout the overlay, per spec.md §5.
const (
	FetchPeerTimeout  = 3 * time.Second
	FetchTotalTimeout = 15 * time.Second
	ReplicateTimeout  = 10 * time.Second
	LookupTimeout     = 5 * time.Second
)
