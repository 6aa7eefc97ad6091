package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	plainColor   = color.New(color.FgWhite)
	boldColor    = color.New(color.Bold)
)

func printSuccess(w io.Writer, format string, args ...interface{}) {
	successColor.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...interface{}) {
	errorColor.Fprintf(w, "✗ %s\n", fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	warningColor.Fprintf(w, "%s\n", fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...interface{}) {
	infoColor.Fprintf(w, "%s\n", fmt.Sprintf(format, args...))
}

func printPlain(w io.Writer, format string, args ...interface{}) {
	plainColor.Fprintf(w, "%s\n", fmt.Sprintf(format, args...))
}
