package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vaultnetwork/vault/vfs"
)

// watchProgress drains ch, rendering a single overwritten line on a TTY or
// newline-delimited log entries when stdout is piped (a file, CI runner).
func watchProgress(ch <-chan vfs.Progress) {
	tty := isatty.IsTerminal(os.Stdout.Fd())
	for update := range ch {
		if update.Done {
			if update.Err != nil {
				fmt.Fprintf(os.Stderr, "\nfailed: %v\n", update.Err)
			} else if tty {
				fmt.Print("\n")
			}
			return
		}
		if tty {
			fmt.Printf("\r%s: %d/%d bytes (%.0f B/s)  ", update.Path, update.BytesDone, update.BytesTotal, update.BytesPerSec)
		} else {
			fmt.Printf("%s: %d/%d bytes\n", update.Path, update.BytesDone, update.BytesTotal)
		}
	}
}
