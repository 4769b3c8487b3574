package main

import "github.com/natserract/harmony/harmonyctl/cmd"

func main() {
	cmd.Execute()
}
