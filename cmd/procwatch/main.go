package main

import (
	"os"

	"github.com/psantana5/procwatch/cmd/procwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
