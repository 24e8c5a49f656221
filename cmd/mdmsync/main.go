package main

import (
	"os"

	"github.com/fleetkeeper/mdmsync/cmd/mdmsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
