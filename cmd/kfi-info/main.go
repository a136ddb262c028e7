package main

import (
	"os"

	"github.com/raskyld/kfi/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
