package main

import "github.com/AJMerr/gopamix/cmd"

func main() {
	cmd.Execute()
}
