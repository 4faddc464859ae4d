package main

import (
	"os"

	"github.com/conneroisu/shroot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
