package main

import "github.com/driveline/syncd/cmd/syncd/cmd"

func main() {
	cmd.Execute()
}
