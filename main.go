package main

import "github.com/KaramelBytes/cplog-cli/cmd"

func main() {
	cmd.Execute()
}
