package main

import "github.com/bryanchriswhite/photobooth/cmd/photobooth/commands"

func main() {
	commands.Execute()
}
