package main

import "github.com/tutu-network/idlemine/internal/cli"

func main() {
	cli.Execute()
}
