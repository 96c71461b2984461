package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/vaultnetwork/vault"
)

const lsHelp = `vaultnode ls [-flags]

List every path currently stored.

Example:
  % vaultnode ls
`

func cmdLs(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("ls", flag.ExitOnError)
	fset.Usage = usage(fset, lsHelp)
	cfgFn := nodeFlags(fset)
	fset.Parse(args)

	n, err := vault.Start(ctx, cfgFn())
	if err != nil {
		return err
	}
	defer n.Shutdown(context.Background())

	files, err := n.ListFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("%12d  %3d blocks  %s\n", f.Size, f.BlockCount, f.Path)
	}
	return nil
}
