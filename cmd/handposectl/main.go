package main

import "github.com/open-teleop/handpose/cmd/handposectl/cmd"

func main() {
	cmd.Execute()
}
