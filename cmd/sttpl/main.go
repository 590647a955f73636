package main

import (
	"os"

	"github.com/oarkflow/sttpl/cmd/sttpl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
