package main

import (
	"os"

	"github.com/hearthmind/hearth/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
