package main

import "github.com/ppiankov/turnguard/internal/cli"

func main() {
	cli.Execute()
}
