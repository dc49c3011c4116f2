package main

import (
	"os"

	"github.com/polonav/igpctl/cmd"
	"github.com/polonav/igpctl/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
