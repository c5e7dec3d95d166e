package main

import "github.com/koompi/nimmit-assistant/cmd"

func main() {
	cmd.Execute()
}
