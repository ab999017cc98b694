// Command taskctl is the operator CLI of the housekeeping server.
package main

import (
	"os"

	"github.com/Martyparty1988/Martyai/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
