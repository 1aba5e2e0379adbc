package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/odyssey-erp/odyssey-ledger/cmd/ledgerctl/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exit *cli.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		_, _ = fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}
