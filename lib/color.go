package lib

import (
	"os"

	"github.com/buger/goterm"
	"github.com/mattn/go-isatty"
)

var colorEnabled = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

func color(s string, c int) string {
	if !colorEnabled {
		return s
	}
	return goterm.Color(s, c)
}

func Red(s string) string {
	return color(s, goterm.RED)
}

func Green(s string) string {
	return color(s, goterm.GREEN)
}

func Yellow(s string) string {
	return color(s, goterm.YELLOW)
}

func Cyan(s string) string {
	return color(s, goterm.CYAN)
}
