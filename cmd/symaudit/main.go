package main

import "github.com/pkgaudit/symaudit/internal/cli"

func main() {
	cli.Execute()
}
