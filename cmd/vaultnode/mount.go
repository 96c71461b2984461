package main

import (
	"context"
	"flag"
	"log"
	"os"
	"syscall"

	"github.com/vaultnetwork/vault"
	"github.com/vaultnetwork/vault/internal/oninterrupt"
	"github.com/vaultnetwork/vault/vfs/vaultfs"
)

const mountHelp = `vaultnode mount [-flags] <mountpoint>

Mount the vault as a FUSE file system at mountpoint. Reading a path fetches
it from the vault (pulling over the network if not held locally); writing a
path stores it as a new file. Ctrl-C unmounts cleanly.

Example:
  % vaultnode mount /mnt/vault
`

func cmdMount(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("mount", flag.ExitOnError)
	fset.Usage = usage(fset, mountHelp)
	cfgFn := nodeFlags(fset)
	fset.Parse(args)
	if fset.NArg() != 1 {
		fset.Usage()
		os.Exit(2)
	}
	mountpoint := fset.Arg(0)

	n, err := vault.Start(ctx, cfgFn())
	if err != nil {
		return err
	}
	defer n.Shutdown(context.Background())

	join, err := vaultfs.Mount(ctx, n.VFS(), log.Default(), mountpoint)
	if err != nil {
		return err
	}
	// A bare kill -INT would otherwise leave the mount point stuck in
	// "Transport endpoint is not connected" if join never gets to run its
	// deferred unmount.
	oninterrupt.Register(func() { syscall.Unmount(mountpoint, 0) })
	return join(ctx)
}
