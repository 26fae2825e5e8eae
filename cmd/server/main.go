package main

import "github.com/bodhi-industries/eventhub/cmd/server/cmd"

func main() {
	cmd.Execute()
}
