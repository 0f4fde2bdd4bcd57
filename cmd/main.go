package main

import (
	"log/slog"
	"os"

	"github.com/victornm/familytrip/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		slog.Error("familytrip: command failed", "error", err)
		os.Exit(1)
	}
}
