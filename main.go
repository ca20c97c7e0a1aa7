package main

import "github.com/aceteam-ai/shiftclock/cmd"

func main() {
	cmd.Execute()
}
