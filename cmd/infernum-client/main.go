package main

import "github.com/seantiz/infernum/internal/cli"

func main() {
	cli.Execute()
}
