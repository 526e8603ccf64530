package main

import "github.com/Rorical/PromptMachine/cmd"

func main() {
	cmd.Execute()
}
