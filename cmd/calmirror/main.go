package main

import "github.com/theakshaypant/calmirror/cmd/calmirror/cmd"

func main() {
	cmd.Execute()
}
