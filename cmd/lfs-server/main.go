package main

import (
	"os"

	"lfsgate/cmd/lfs-server/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
