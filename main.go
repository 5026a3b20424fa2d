package main

import "terra-eye/cmd"

func main() {
	cmd.Execute()
}
