package main

import (
	"os"

	"github.com/mrarosh/Pear-code/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
