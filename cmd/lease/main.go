package main

import (
	"os"

	"github.com/hackborn/lease/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
