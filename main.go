package main

import "benchq/cmd"

func main() {
	cmd.Execute()
}
