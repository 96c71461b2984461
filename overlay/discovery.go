package overlay

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// serviceName is the mDNS service type vault nodes register under. The
// instance name carries the first 8 bytes of the node's routing ID,
// hex-encoded, so peers can Announce it without a handshake round-trip.
const serviceName = "_vaultnode._tcp"

// Discovery runs local-network peer discovery over mDNS, adopted from
// the broader example pack's production use of zeroconf for consensus
// node discovery (the teacher itself has no P2P discovery code of its
// own to generalise).
type Discovery struct {
	server *zeroconf.Server
	log    *log.Logger
}

// StartDiscovery registers self under serviceName at port and begins
// browsing for other instances, invoking onPeer for each one found
// (including, harmlessly, itself — callers dedupe by ID).
func StartDiscovery(ctx context.Context, self ID, port int, logger *log.Logger, onPeer func(id ID, addr string)) (*Discovery, error) {
	if logger == nil {
		logger = log.Default()
	}
	instance := fmt.Sprintf("%x", self[:8])
	server, err := zeroconf.Register(instance, serviceName, "local.", port, nil, nil)
	if err != nil {
		return nil, err
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		server.Shutdown()
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			id, ok := decodeInstanceID(entry.Instance)
			if !ok || len(entry.AddrIPv4) == 0 {
				continue
			}
			addr := entry.AddrIPv4[0].String() + ":" + strconv.Itoa(entry.Port)
			onPeer(id, addr)
		}
	}()

	if err := resolver.Browse(ctx, serviceName, "local.", entries); err != nil {
		server.Shutdown()
		return nil, err
	}

	return &Discovery{server: server, log: logger}, nil
}

// decodeInstanceID recovers the 8-byte ID prefix advertised in the mDNS
// instance name. A full collision-resistant ID doesn't fit in a DNS
// label; the peer is Announced under an ID holding that prefix with the
// remaining bytes zero, and nothing later replaces it with the full ID.
func decodeInstanceID(instance string) (ID, bool) {
	prefix, err := hex.DecodeString(instance)
	if err != nil || len(prefix) != 8 {
		return ID{}, false
	}
	var id ID
	copy(id[:], prefix)
	return id, true
}

func (d *Discovery) Shutdown() {
	d.server.Shutdown()
}

// discoveryRefreshInterval is unused by zeroconf directly (it browses
// continuously) but documents the cadence callers should re-Announce
// bootstrap peers at if discovery is disabled.
const discoveryRefreshInterval = 30 * time.Second
