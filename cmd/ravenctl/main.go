package main

import "raven-chat/cmd/ravenctl/cmd"

func main() {
	cmd.Execute()
}
