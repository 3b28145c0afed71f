package main

import (
	"os"

	"github.com/evomassiny/golox/cmd"
)

func main() {
	if err := cmd.App().Execute(); err != nil {
		os.Exit(1)
	}
}
