package main

import (
	"github.com/eleutherai/neoxctl/pkg/cli"
)

func main() {
	cli.Execute()
}
