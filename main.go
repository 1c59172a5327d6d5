package main

import (
	"os"

	"github.com/lance13c/qarun/cmd"
)

var version = "dev"

func main() {
	cmd.SetVersion(version)
	os.Exit(cmd.Execute())
}
