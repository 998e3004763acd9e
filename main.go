package main

import "github.com/nextlevelbuilder/modbot/cmd"

func main() {
	cmd.Execute()
}
