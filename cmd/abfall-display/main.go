package main

import (
	"fmt"
	"os"

	"github.com/klabast/wb-services/abfall-display/internal/commands"
)

var (
	version string
	commit  string
	date    string
)

func main() {
	err := commands.Execute(os.Args, commands.BuildArgs{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "abfall-display: %v\n", err)
		os.Exit(1)
	}
}
