package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/huh"
)

type item struct {
	id    int
	title string
	desc  string
	kind  string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title }

func newList(items []list.Item, w, h int, filter bool) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), w, h)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(filter)
	l.SetShowHelp(true)
	return l
}

// stepForm advances f and reports whether it has completed.
func stepForm(f *huh.Form, msg tea.Msg) (*huh.Form, tea.Cmd, bool, error) {
	if f == nil {
		return nil, nil, false, fmt.Errorf("internal error: form not initialized")
	}
	updated, cmd := f.Update(msg)
	next, ok := updated.(*huh.Form)
	if !ok {
		return f, nil, false, fmt.Errorf("internal error: unexpected form model type")
	}
	return next, cmd, next.State == huh.StateCompleted, nil
}

func nonEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
