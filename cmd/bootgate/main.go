package main

import (
	"os"

	"github.com/go-go-golems/bootgate/cmd/bootgate/cmds"
)

var version = "dev"

func main() {
	os.Exit(cmds.Execute(version, os.Args[1:], os.Stderr))
}
