package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"codeberg.org/freetier/gateway/internal/config"
	"codeberg.org/freetier/gateway/internal/tui"
)

func main() {
	flags := config.ParseMonitorFlags()

	app := tui.NewApp(flags.URL, flags.Interval)
	p := tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("error running gateway monitor: %v\n", err)
		os.Exit(1)
	}
}
