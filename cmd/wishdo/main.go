package main

import (
	"os"

	"wishdo/cmd/wishdo/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}
