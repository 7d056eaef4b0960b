package main

import "github.com/SafeMPC/card-bridge/cmd"

func main() {
	cmd.Execute()
}
