package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/notepid/twilight_forum/internal/admin/app"
	"github.com/notepid/twilight_forum/internal/admin/ui"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to configuration file")
	pflag.Parse()

	a, cleanup, err := app.New(*configPath)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	p := tea.NewProgram(ui.NewRootModel(a), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
