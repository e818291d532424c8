package main

import "github.com/coldmailer/coldmailer/cmd"

func main() {
	cmd.Execute()
}
