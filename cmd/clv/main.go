package main

import (
	"fmt"
	"os"

	"github.com/wonny/clv-retention/cmd/clv/commands"
)

// main is the entry point for the clv CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/clv [command]
func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, commands.Describe(err))
		os.Exit(1)
	}
}
