package main

import (
	"context"
	"flag"
	"log"

	"github.com/vaultnetwork/vault"
)

const startHelp = `vaultnode start [-flags]

Run a node: bind the overlay listener, optionally discover peers over
mDNS, and serve requests until interrupted.

Example:
  % vaultnode start -data-dir /var/lib/vault -discovery
`

func cmdStart(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("start", flag.ExitOnError)
	fset.Usage = usage(fset, startHelp)
	cfgFn := nodeFlags(fset)
	fset.Parse(args)

	n, err := vault.Start(ctx, cfgFn())
	if err != nil {
		return err
	}
	log.Printf("vaultnode: listening on %s", n.Addr())

	<-ctx.Done()
	log.Printf("vaultnode: shutting down")
	return n.Shutdown(context.Background())
}
