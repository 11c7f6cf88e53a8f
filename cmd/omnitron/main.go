package main

import "github.com/luxquant/omnitron/cmd/omnitron/cmd"

func main() {
	cmd.Execute()
}
