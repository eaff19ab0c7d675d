package main

import (
	"os"

	_ "time/tzdata"

	"etf_momentum/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
