package main

import "alphapoints/internal/cli"

func main() {
	cli.Execute()
}
