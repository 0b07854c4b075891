package main

import "github.com/zsmith-jtec/AFKPI/cmd"

func main() {
	cmd.Execute()
}
