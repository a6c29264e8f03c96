// Package main is the entry point for the cde-sql CLI binary.
package main

import (
	"os"

	"cde-sql/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
