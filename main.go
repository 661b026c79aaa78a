package main

import (
	"os"

	"github.com/bnema/regreport/internal/cli"
	"github.com/bnema/regreport/internal/cli/cmd"
)

var version = "dev"

func main() {
	a := cli.NewApp(version)
	os.Exit(cmd.Execute(a))
}
