package main

import "github.com/jmehdipour/actionflow/cmd"

func main() {
	cmd.Execute()
}
