package main

import (
	"fmt"
	"os"

	"medication-reminder/cmd/medctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
