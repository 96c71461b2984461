package main

import (
	"context"
	"flag"
	"os"

	"github.com/vaultnetwork/vault"
	"github.com/vaultnetwork/vault/vfs"
)

const getHelp = `vaultnode get [-flags] <vault-path> [local-file]

Read a vault path, writing it to local-file, or to stdout if omitted.

Example:
  % vaultnode get /docs/report.pdf ./report.pdf
  % vaultnode get /docs/report.pdf > report.pdf
`

func cmdGet(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("get", flag.ExitOnError)
	fset.Usage = usage(fset, getHelp)
	cfgFn := nodeFlags(fset)
	fset.Parse(args)
	if fset.NArg() < 1 || fset.NArg() > 2 {
		fset.Usage()
		os.Exit(2)
	}
	vaultPath := fset.Arg(0)

	n, err := vault.Start(ctx, cfgFn())
	if err != nil {
		return err
	}
	defer n.Shutdown(context.Background())

	progress := make(chan vfs.Progress, 16)
	if fset.NArg() == 2 {
		go watchProgress(progress)
	} else {
		// stdout is the payload destination: progress goes nowhere, since
		// interleaving status text with file bytes would corrupt the
		// redirected stream.
		go func() {
			for range progress {
			}
		}()
	}

	data, err := n.ReadFile(ctx, vaultPath, progress)
	if err != nil {
		return err
	}

	if fset.NArg() == 2 {
		return os.WriteFile(fset.Arg(1), data, 0644)
	}
	_, err = os.Stdout.Write(data)
	return err
}
