package main

import (
	"os"

	"github.com/omidshahri/glassmind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
