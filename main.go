package main

import (
	"os"

	"github.com/ahmadzakiakmal/iota-tx-service/cli"
)

func main() {
	os.Exit(cli.Execute())
}
