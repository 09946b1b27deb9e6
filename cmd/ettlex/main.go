package main

import (
	"github.com/nickout/ettlex/cmd/ettlex/cmd"
)

func main() {
	cmd.Execute()
}
