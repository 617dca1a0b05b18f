package main

import (
	"os"

	"github.com/palisadehq/palisade/cmd/palisadectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
