package main

import "github.com/vietddude/costwatch/internal/cli"

func main() {
	cli.Execute()
}
