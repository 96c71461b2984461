package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/vaultnetwork/vault"
)

const peersHelp = `vaultnode peers [-flags] [host:port...]

List known peers, or add one or more peers by address.

Example:
  % vaultnode peers
  % vaultnode peers 10.0.0.5:4242
`

func cmdPeers(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("peers", flag.ExitOnError)
	fset.Usage = usage(fset, peersHelp)
	cfgFn := nodeFlags(fset)
	fset.Parse(args)

	n, err := vault.Start(ctx, cfgFn())
	if err != nil {
		return err
	}
	defer n.Shutdown(context.Background())

	for _, addr := range fset.Args() {
		n.AddPeer(addr)
	}

	for _, p := range n.ListPeers() {
		fmt.Printf("%x  %-22s  reputation=%d\n", p.ID, p.Addr, p.Reputation)
	}
	return nil
}
