// Package overlaytest provides an in-memory Transport for exercising
// overlay.Node's retry, de-duplication, and quorum logic without real
// sockets, matching the fake-transport style used throughout the
// example pack's networking tests.
package overlaytest

import (
	"context"
	"sync"

	"github.com/vaultnetwork/vault/overlay"
)

// Handler answers one request message for a given address.
type Handler func(req overlay.Message) overlay.Message

// FakeTransport is a switchboard: Register binds an address to a
// Handler, and Send dispatches to whatever Handler currently owns that
// address. RequestCount lets tests assert de-duplication (e.g. "exactly
// one RequestBlock reached the network for N concurrent Fetch calls").
type FakeTransport struct {
	mu       sync.Mutex
	handlers map[string]Handler
	counts   map[overlay.Kind]int
}

func New() *FakeTransport {
	return &FakeTransport{
		handlers: make(map[string]Handler),
		counts:   make(map[overlay.Kind]int),
	}
}

func (f *FakeTransport) Register(addr string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[addr] = h
}

func (f *FakeTransport) Unregister(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, addr)
}

func (f *FakeTransport) Send(ctx context.Context, addr string, req overlay.Message) (overlay.Message, error) {
	f.mu.Lock()
	h, ok := f.handlers[addr]
	f.counts[req.Kind]++
	f.mu.Unlock()
	if !ok {
		return overlay.Message{}, context.DeadlineExceeded
	}
	return h(req), nil
}

// RequestCount returns how many messages of kind have been sent across
// every address registered on this switchboard.
func (f *FakeTransport) RequestCount(kind overlay.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[kind]
}
