package main

import "github.com/ajirinow/backend/cmd"

func main() {
	cmd.Execute()
}
