package main

import "github.com/bryanchriswhite/FlameSeg/cmd/flameseg/commands"

func main() {
	commands.Execute()
}
