package main

import "perpwatch/internal/cli"

func main() {
	cli.Execute()
}
