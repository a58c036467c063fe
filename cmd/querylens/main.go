package main

import "github.com/sso312/QueryLens-sub002/internal/cli"

func main() {
	cli.Execute()
}
