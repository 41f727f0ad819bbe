package main

import (
	"os"

	"github.com/xaenox/bankwatch/internal/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
