// Package main is the buspulse CLI entry point.
package main

import (
	"os"

	"github.com/rotalabs/buspulse/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
