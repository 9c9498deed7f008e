package main

import "github.com/messagestack/apiserver/cmd"

func main() {
	cmd.Execute()
}
