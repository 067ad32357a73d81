package main

import "github.com/nextlevelbuilder/membridge/cmd"

func main() {
	cmd.Execute()
}
