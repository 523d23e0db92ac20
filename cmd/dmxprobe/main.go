package main

import "github.com/asoronow/laser-controller/cmd/dmxprobe/cmd"

func main() {
	cmd.Execute()
}
