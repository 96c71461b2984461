// Command vaultnode is a thin reference CLI exercising the vault façade:
// start, put, get, ls, peers, metrics, mount.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vaultnetwork/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	args := os.Args[1:]
	verb := "start"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	if verb == "help" {
		fmt.Fprintln(os.Stderr, "vaultnode <command> [-flags] [args]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "\tstart   - run a node and keep it serving peers")
		fmt.Fprintln(os.Stderr, "\tput     - store a local file under a vault path")
		fmt.Fprintln(os.Stderr, "\tget     - read a vault path to stdout or a local file")
		fmt.Fprintln(os.Stderr, "\tls      - list stored paths")
		fmt.Fprintln(os.Stderr, "\tpeers   - list and add known peers")
		fmt.Fprintln(os.Stderr, "\tmetrics - print the current metrics snapshot")
		fmt.Fprintln(os.Stderr, "\tmount   - mount the store read/write via FUSE")
		os.Exit(2)
	}

	verbs := map[string]func(ctx context.Context, args []string) error{
		"start":   cmdStart,
		"put":     cmdPut,
		"get":     cmdGet,
		"ls":      cmdLs,
		"peers":   cmdPeers,
		"metrics": cmdMetrics,
		"mount":   cmdMount,
	}
	fn, ok := verbs[verb]
	if !ok {
		return fmt.Errorf("unknown command %q; try 'vaultnode help'", verb)
	}

	ctx, cancel := vault.InterruptibleContext()
	defer cancel()
	return fn(ctx, args)
}
