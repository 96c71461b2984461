package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/vaultnetwork/vault"
)

const metricsHelp = `vaultnode metrics [-flags]

Print the current metrics snapshot: request/failure counts, locally held
blocks and bytes, known peers, uptime, and derived success rate.

Example:
  % vaultnode metrics
`

func cmdMetrics(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("metrics", flag.ExitOnError)
	fset.Usage = usage(fset, metricsHelp)
	cfgFn := nodeFlags(fset)
	fset.Parse(args)

	n, err := vault.Start(ctx, cfgFn())
	if err != nil {
		return err
	}
	defer n.Shutdown(context.Background())

	s := n.Metrics()
	fmt.Printf("requests_total       %d\n", s.RequestsTotal)
	fmt.Printf("requests_failed      %d\n", s.RequestsFailed)
	fmt.Printf("success_rate         %.4f\n", s.SuccessRate)
	fmt.Printf("blocks_local         %d\n", s.BlocksLocal)
	fmt.Printf("bytes_stored         %d\n", s.BytesStored)
	fmt.Printf("peers_connected      %d\n", s.PeersConnected)
	fmt.Printf("uptime_seconds       %.1f\n", s.UptimeSeconds)
	return nil
}
