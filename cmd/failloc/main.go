package main

import "github.com/nixlim/failloc/internal/cli"

func main() {
	cli.Execute()
}
