package main

import "cineast/internal/cli"

func main() {
	cli.Execute()
}
