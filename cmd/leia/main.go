package main

import (
	"os"

	"github.com/leialab/leia/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
