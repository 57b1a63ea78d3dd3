package main

import "github.com/swapcard/marketplace/cmd"

func main() {
	cmd.Execute()
}
