package main

import "github.com/scoutgame/scoutd/cmd"

func main() {
	cmd.Execute()
}
