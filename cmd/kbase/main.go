package main

import "kbase/internal/cli"

func main() {
	cli.Execute()
}
