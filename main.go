package main

import "github.com/veridoc/veridoc/cmd"

func main() {
	cmd.Execute()
}
