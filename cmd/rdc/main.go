package main

import (
	"os"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
