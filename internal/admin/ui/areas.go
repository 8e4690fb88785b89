package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/huh"

	"github.com/notepid/twilight_forum/internal/admin/app"
	"github.com/notepid/twilight_forum/internal/forum"
)

type areasModel struct {
	app *app.App

	width  int
	height int

	Done bool

	state  areasState
	list   list.Model
	err    error
	notice string

	selected *forum.Area
	target   string

	form *huh.Form

	topic   string
	secret  bool
	grantTo string
	confirm bool
}

type areasState int

const (
	areasStateList areasState = iota
	areasStateDetail
	areasStateAccess
	areasStateCreate
	areasStateDelete
	areasStateGrant
	areasStateRevoke
)

func newAreasModel(a *app.App) *areasModel {
	m := &areasModel{app: a, state: areasStateList}
	m.reloadAreas()
	return m
}

func (m *areasModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.list.SetSize(w, h-2)
}

func (m *areasModel) Update(msg tea.Msg) tea.Cmd {
	if m.err != nil {
		if msg, ok := msg.(tea.KeyMsg); ok {
			switch msg.String() {
			case "esc", "q", "enter":
				m.err = nil
				m.form = nil
				m.selected = nil
				m.state = areasStateList
				m.reloadAreas()
			}
		}
		return nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "q":
			if m.state == areasStateList {
				m.Done = true
				return nil
			}
		case "esc":
			m.back()
			return nil
		}
	}

	switch m.state {
	case areasStateList, areasStateDetail, areasStateAccess:
		return m.updateList(msg)
	default:
		return m.updateForm(msg)
	}
}

func (m *areasModel) updateList(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	km, ok := msg.(tea.KeyMsg)
	if !ok || km.String() != "enter" {
		return cmd
	}
	it, ok := m.list.SelectedItem().(item)
	if !ok {
		return cmd
	}

	switch it.kind {
	case "create":
		m.startCreate()
	case "area":
		m.openArea(it.id)
	case "access":
		m.state = areasStateAccess
		m.reloadAccess()
	case "delete":
		m.startConfirm(areasStateDelete, fmt.Sprintf("Delete %q with all its threads and messages?", m.selected.Topic))
	case "grant":
		m.startGrant()
	case "grantee":
		m.target = it.title
		m.startConfirm(areasStateRevoke, fmt.Sprintf("Revoke access for %s?", it.title))
	case "back":
		m.back()
	}
	return nil
}

func (m *areasModel) updateForm(msg tea.Msg) tea.Cmd {
	f, cmd, done, err := stepForm(m.form, msg)
	if err != nil {
		m.err = err
		return nil
	}
	m.form = f
	if !done {
		return cmd
	}
	m.form = nil

	ctx := context.Background()
	switch m.state {
	case areasStateCreate:
		if m.confirm {
			if _, err := m.app.CreateArea(ctx, m.topic, m.secret); err != nil {
				m.err = err
				return nil
			}
		}
		m.state = areasStateList
		m.reloadAreas()
	case areasStateDelete:
		if m.confirm {
			if err := m.app.DeleteArea(ctx, m.selected.ID); err != nil {
				m.err = err
				return nil
			}
			m.selected = nil
			m.state = areasStateList
			m.reloadAreas()
			return nil
		}
		m.state = areasStateDetail
		m.list = m.areaActions()
	case areasStateGrant:
		if m.confirm {
			if err := m.app.Grant(ctx, m.selected.ID, strings.TrimSpace(m.grantTo)); err != nil {
				m.err = err
				return nil
			}
			m.notice = fmt.Sprintf("granted %s", strings.TrimSpace(m.grantTo))
		}
		m.state = areasStateAccess
		m.reloadAccess()
	case areasStateRevoke:
		if m.confirm {
			if err := m.app.Revoke(ctx, m.selected.ID, m.target); err != nil {
				m.err = err
				return nil
			}
			m.notice = fmt.Sprintf("revoked %s", m.target)
		}
		m.state = areasStateAccess
		m.reloadAccess()
	}
	return nil
}

func (m *areasModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Areas error: %v\n\nPress Enter/Esc to go back.", m.err)
	}

	switch m.state {
	case areasStateList:
		m.list.Title = "Areas"
		return m.list.View() + "\n(q to quit, enter to select)"
	case areasStateDetail, areasStateAccess:
		if m.selected == nil {
			return "No area selected\n\n(esc to go back)"
		}
		header := titleStyle.Render(fmt.Sprintf("Area: %s", m.selected.Topic)) + "\n"
		meta := fmt.Sprintf("Secret: %s\nThreads: %d\nMessages: %d\n",
			yesNo(m.selected.IsSecret), m.selected.ThreadCount, m.selected.MessageCount)
		if m.notice != "" {
			meta += noticeStyle.Render(m.notice) + "\n"
		}
		return header + meta + "\n" + m.list.View() + "\n(esc to go back)"
	default:
		return m.form.View() + "\n\n(esc to go back)"
	}
}

func (m *areasModel) reloadAreas() {
	areas, err := m.app.ListAreas(context.Background())
	if err != nil {
		m.err = err
		return
	}

	items := make([]list.Item, 0, len(areas)+1)
	items = append(items, item{title: "+ Create area", desc: "Add a new area", kind: "create"})
	for _, a := range areas {
		desc := fmt.Sprintf("%d threads • %d messages", a.ThreadCount, a.MessageCount)
		if a.IsSecret {
			desc = "secret • " + desc
		}
		items = append(items, item{id: a.ID, title: a.Topic, desc: desc, kind: "area"})
	}

	m.list = newList(items, m.width, m.height-2, true)
	m.list.Title = "Areas"
}

func (m *areasModel) openArea(id int) {
	a, err := m.app.GetArea(context.Background(), id)
	if err != nil {
		m.err = err
		return
	}
	m.selected = a
	m.notice = ""
	m.state = areasStateDetail
	m.list = m.areaActions()
}

func (m *areasModel) areaActions() list.Model {
	var items []list.Item
	if m.selected.IsSecret {
		items = append(items, item{title: "Access list", desc: "Users granted this secret area", kind: "access"})
	}
	items = append(items,
		item{title: "Delete area", desc: "Remove the area with its threads and messages", kind: "delete"},
		item{title: "Back", desc: "Return to areas list", kind: "back"},
	)
	l := newList(items, m.width, m.height-8, false)
	l.Title = "Actions"
	return l
}

func (m *areasModel) reloadAccess() {
	names, err := m.app.AccessList(context.Background(), m.selected.ID)
	if err != nil {
		m.err = err
		return
	}

	items := make([]list.Item, 0, len(names)+1)
	items = append(items, item{title: "+ Grant access", desc: "Allow a user into this area", kind: "grant"})
	for _, n := range names {
		items = append(items, item{title: n, desc: "enter to revoke", kind: "grantee"})
	}
	m.list = newList(items, m.width, m.height-8, true)
	m.list.Title = "Access list"
}

func (m *areasModel) startCreate() {
	m.state = areasStateCreate
	m.topic = ""
	m.secret = false
	m.confirm = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Topic").Value(&m.topic).Validate(func(s string) error {
				return forum.ValidateTopic(s)
			}),
			huh.NewConfirm().Title("Secret").Value(&m.secret),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Create area?").Value(&m.confirm),
		),
	)
}

func (m *areasModel) startGrant() {
	m.state = areasStateGrant
	m.grantTo = ""
	m.confirm = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Username").Value(&m.grantTo).Validate(nonEmpty("username")),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Grant access?").Value(&m.confirm),
		),
	)
}

func (m *areasModel) startConfirm(s areasState, question string) {
	m.state = s
	m.confirm = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().Title(question).Value(&m.confirm),
		),
	)
}

func (m *areasModel) back() {
	switch m.state {
	case areasStateList:
		m.Done = true
	case areasStateDetail:
		m.state = areasStateList
		m.selected = nil
		m.reloadAreas()
	case areasStateAccess, areasStateDelete:
		m.form = nil
		m.state = areasStateDetail
		m.list = m.areaActions()
	case areasStateGrant, areasStateRevoke:
		m.form = nil
		m.state = areasStateAccess
		m.reloadAccess()
	default:
		m.form = nil
		m.state = areasStateList
		m.reloadAreas()
	}
}
