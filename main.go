package main

import "codescope/cmd"

func main() {
	cmd.Execute()
}
