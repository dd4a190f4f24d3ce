package main

import (
	"os"

	"github.com/Dicklesworthstone/crewgate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
