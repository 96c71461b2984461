package main

import (
	"context"
	"flag"
	"os"

	"github.com/vaultnetwork/vault"
	"github.com/vaultnetwork/vault/vfs"
)

const putHelp = `vaultnode put [-flags] <local-file> <vault-path>

Store a local file under a path in the vault.

Example:
  % vaultnode put ./report.pdf /docs/report.pdf
`

func cmdPut(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("put", flag.ExitOnError)
	fset.Usage = usage(fset, putHelp)
	cfgFn := nodeFlags(fset)
	fset.Parse(args)
	if fset.NArg() != 2 {
		fset.Usage()
		os.Exit(2)
	}
	localPath, vaultPath := fset.Arg(0), fset.Arg(1)

	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	n, err := vault.Start(ctx, cfgFn())
	if err != nil {
		return err
	}
	defer n.Shutdown(context.Background())

	progress := make(chan vfs.Progress, 16)
	go watchProgress(progress)
	return n.WriteFile(ctx, vaultPath, data, progress)
}
