package main

import (
	"os"

	"github.com/perfx-labs/perfx/cmd/perfx/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
