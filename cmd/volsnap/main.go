package main

import "github.com/volsnap-project/volsnap/internal/cli"

func main() {
	cli.Execute()
}
