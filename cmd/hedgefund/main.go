package main

import (
	"os"

	"github.com/elys-network/hedgefund/cmd/hedgefund/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
