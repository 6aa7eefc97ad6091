package main

import (
	"os"

	"github.com/YuminosukeSato/mltemplate/internal/cli/commands"
)

func main() {
	os.Exit(commands.Execute())
}
