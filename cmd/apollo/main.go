package main

import "github.com/OpenTraceLab/OpenTraceApollo/cmd/apollo/cmd"

func main() {
	cmd.Execute()
}
