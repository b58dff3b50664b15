package main

import (
	"os"

	"custody/go-client/cmd/custodyctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
