package main

import (
	"fmt"
	"os"

	"github.com/shehabattia96/carry-sound/internal/cli"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.NewSenderCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "carry-sound-sender: %v\n", err)
		os.Exit(1)
	}
}
