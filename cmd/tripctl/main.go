package main

import (
	"os"

	"tripsplit/cmd/tripctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
