package main

import "github.com/lpappas98/claw-control-center/cmd/clawcenter/commands"

func main() {
	commands.Execute()
}
