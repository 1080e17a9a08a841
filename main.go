package main

import "github.com/greenledger/ghgstage/cmd"

func main() {
	cmd.Execute()
}
