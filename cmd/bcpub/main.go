package main

import (
	"os"

	"github.com/daq-spack/bcpub/pkg/cli"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

func main() {
	cmd, err := cli.NewRootCommand()
	if err != nil {
		console.Fatalf("%s", err)
	}

	if err = cmd.Execute(); err != nil {
		if cli.IsReported(err) {
			os.Exit(1)
		}
		console.Fatalf("%s", err)
	}
}
