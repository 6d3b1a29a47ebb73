package main

import "github.com/TheCurle/BS/cmd"

func main() {
	cmd.Execute()
}
