package main

import (
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

const separator = "\n==================================\n"

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
