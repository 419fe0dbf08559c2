package main

import "github.com/chathub-io/chathub/cmd"

func main() {
	cmd.Execute()
}
