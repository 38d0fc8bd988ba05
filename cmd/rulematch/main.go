package main

import (
	"os"

	"github.com/solatis/rulematch/cmd/rulematch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
