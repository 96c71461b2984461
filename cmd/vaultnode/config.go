package main

import (
	"flag"
	"strings"

	"github.com/vaultnetwork/vault"
)

// nodeFlags registers the Config flags shared by every subcommand that
// starts a Node, and returns a func building the Config from the parsed
// values.
func nodeFlags(fset *flag.FlagSet) func() *vault.Config {
	dataDir := fset.String("data-dir", "", "on-disk root for blocks, manifest, and metadata (default: per-user cache dir)")
	port := fset.Int("port", 0, "overlay listen port (0 picks an ephemeral port)")
	replication := fset.Int("replication-factor", 0, "peers targeted by replicate (default 3)")
	chunkSize := fset.Int("chunk-size", 0, "plaintext bytes per block (default 64KiB)")
	bootstrap := fset.String("bootstrap", "", "comma-separated host:port peers to dial on startup")
	discovery := fset.Bool("discovery", false, "enable local-network mDNS peer discovery")
	logLevel := fset.String("log-level", "", "trace|debug|info|warn|error (default info)")

	return func() *vault.Config {
		var peers []string
		if *bootstrap != "" {
			peers = strings.Split(*bootstrap, ",")
		}
		return &vault.Config{
			DataDir:            *dataDir,
			Port:               *port,
			ReplicationFactor:  *replication,
			ChunkSize:          *chunkSize,
			BootstrapPeers:     peers,
			DiscoveryMulticast: *discovery,
			LogLevel:           *logLevel,
		}
	}
}
