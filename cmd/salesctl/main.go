package main

import (
	"fmt"
	"os"

	"github.com/angelmondragon/salesledger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "salesctl:", err)
		os.Exit(1)
	}
}
