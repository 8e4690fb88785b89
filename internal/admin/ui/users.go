package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/huh"

	"github.com/notepid/twilight_forum/internal/admin/app"
	"github.com/notepid/twilight_forum/internal/user"
)

type usersModel struct {
	app *app.App

	width  int
	height int

	Done bool

	state usersState

	list   list.Model
	err    error
	notice string

	selected *user.User

	form *huh.Form

	createUsername string
	createPassword string
	createAdmin    bool
	createSave     bool

	newPassword string
	pwConfirm   string
	pwSave      bool

	roleAdmin bool
	roleSave  bool
}

type usersState int

const (
	usersStateList usersState = iota
	usersStateDetail
	usersStateCreate
	usersStateResetPassword
	usersStateSetRole
)

func newUsersModel(a *app.App) *usersModel {
	m := &usersModel{app: a, state: usersStateList}
	m.reloadList()
	return m
}

func (m *usersModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.list.SetSize(w, h-2)
}

func (m *usersModel) Update(msg tea.Msg) tea.Cmd {
	if m.err != nil {
		if msg, ok := msg.(tea.KeyMsg); ok {
			switch msg.String() {
			case "esc", "q", "enter":
				m.err = nil
				m.state = usersStateList
				m.form = nil
				m.selected = nil
				m.reloadList()
			}
		}
		return nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "q":
			if m.state == usersStateList {
				m.Done = true
				return nil
			}
		case "esc":
			m.back()
			return nil
		}
	}

	switch m.state {
	case usersStateList:
		return m.updateList(msg)
	case usersStateDetail:
		return m.updateDetail(msg)
	default:
		return m.updateForm(msg)
	}
}

func (m *usersModel) updateList(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		it, ok := m.list.SelectedItem().(item)
		if !ok {
			return cmd
		}
		if it.kind == "create" {
			m.startCreate()
			return nil
		}
		u, err := m.app.GetUser(context.Background(), it.id)
		if err != nil {
			m.err = err
			return nil
		}
		m.selected = u
		m.notice = ""
		m.state = usersStateDetail
		m.list = newUserActions(m.width, m.height)
		return nil
	}
	return cmd
}

func (m *usersModel) updateDetail(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		it, ok := m.list.SelectedItem().(item)
		if !ok {
			return cmd
		}
		switch it.kind {
		case "set_role":
			m.startSetRole()
		case "reset_password":
			m.startResetPassword()
		case "end_sessions":
			n, err := m.app.EndSessions(context.Background(), m.selected.ID)
			if err != nil {
				m.err = err
				return nil
			}
			m.notice = fmt.Sprintf("%d session(s) ended", n)
		case "back":
			m.back()
		}
		return nil
	}
	return cmd
}

func (m *usersModel) updateForm(msg tea.Msg) tea.Cmd {
	f, cmd, done, err := stepForm(m.form, msg)
	if err != nil {
		m.err = err
		return nil
	}
	m.form = f
	if !done {
		return cmd
	}

	ctx := context.Background()
	switch m.state {
	case usersStateCreate:
		if m.createSave {
			if _, err := m.app.CreateUser(ctx, m.createUsername, m.createPassword, m.createAdmin); err != nil {
				m.err = err
				return nil
			}
		}
		m.form = nil
		m.state = usersStateList
		m.reloadList()
		return nil
	case usersStateResetPassword:
		if m.pwSave && m.selected != nil {
			if err := m.app.ResetPassword(ctx, m.selected.ID, m.newPassword); err != nil {
				m.err = err
				return nil
			}
			m.notice = "password reset, sessions ended"
		}
	case usersStateSetRole:
		if m.roleSave && m.selected != nil {
			if err := m.app.SetAdmin(ctx, m.selected.ID, m.roleAdmin); err != nil {
				m.err = err
				return nil
			}
			m.notice = "role updated"
		}
	}
	m.refreshSelected()
	m.form = nil
	m.state = usersStateDetail
	m.list = newUserActions(m.width, m.height)
	return nil
}

func (m *usersModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Users error: %v\n\nPress Enter/Esc to go back.", m.err)
	}

	switch m.state {
	case usersStateList:
		m.list.Title = "Users"
		return m.list.View() + "\n(q to quit, enter to select)"
	case usersStateDetail:
		if m.selected == nil {
			return "No user selected\n\n(esc to go back)"
		}
		header := titleStyle.Render(fmt.Sprintf("User: %s", m.selected.Username)) + "\n"
		meta := fmt.Sprintf("Role: %s\nCreated: %s\n",
			m.selected.Role(), m.selected.CreatedAt.Format("2006-01-02 15:04"))
		if m.notice != "" {
			meta += noticeStyle.Render(m.notice) + "\n"
		}
		m.list.Title = "Actions"
		return header + meta + "\n" + m.list.View() + "\n(esc to go back)"
	default:
		return m.form.View() + "\n\n(esc to go back)"
	}
}

func (m *usersModel) reloadList() {
	users, err := m.app.ListUsers(context.Background())
	if err != nil {
		m.err = err
		return
	}

	items := make([]list.Item, 0, len(users)+1)
	items = append(items, item{title: "+ Create new user", desc: "Add a new account", kind: "create"})
	for _, u := range users {
		desc := fmt.Sprintf("%s • joined %s", u.Role(), u.CreatedAt.Format("2006-01-02"))
		items = append(items, item{id: u.ID, title: u.Username, desc: desc, kind: "user"})
	}

	m.list = newList(items, m.width, m.height-2, true)
	m.list.Title = "Users"
}

func newUserActions(w, h int) list.Model {
	items := []list.Item{
		item{title: "Set role", desc: "Grant or remove admin rights", kind: "set_role"},
		item{title: "Reset password", desc: "Set a new password and end sessions", kind: "reset_password"},
		item{title: "End sessions", desc: "Log the user out everywhere", kind: "end_sessions"},
		item{title: "Back", desc: "Return to users list", kind: "back"},
	}
	return newList(items, w, h-8, false)
}

func (m *usersModel) startCreate() {
	m.state = usersStateCreate
	m.createUsername = ""
	m.createPassword = ""
	m.createAdmin = false
	m.createSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Username").Value(&m.createUsername).Validate(nonEmpty("username")),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&m.createPassword).Validate(nonEmpty("password")),
			huh.NewConfirm().Title("Administrator").Value(&m.createAdmin),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Create user?").Value(&m.createSave),
		),
	)
}

func (m *usersModel) startResetPassword() {
	m.state = usersStateResetPassword
	m.newPassword = ""
	m.pwConfirm = ""
	m.pwSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("New password").EchoMode(huh.EchoModePassword).Value(&m.newPassword).Validate(nonEmpty("password")),
			huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&m.pwConfirm).Validate(func(s string) error {
				if s != m.newPassword {
					return fmt.Errorf("passwords do not match")
				}
				return nil
			}),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Reset password?").Value(&m.pwSave),
		),
	)
}

func (m *usersModel) startSetRole() {
	m.state = usersStateSetRole
	m.roleAdmin = m.selected.IsAdmin
	m.roleSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().Title("Administrator").Value(&m.roleAdmin),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Save role?").Value(&m.roleSave),
		),
	)
}

func (m *usersModel) back() {
	switch m.state {
	case usersStateList:
		m.Done = true
	case usersStateDetail:
		m.state = usersStateList
		m.selected = nil
		m.form = nil
		m.reloadList()
	default:
		m.state = usersStateDetail
		m.form = nil
		m.list = newUserActions(m.width, m.height)
	}
}

func (m *usersModel) refreshSelected() {
	if m.selected == nil {
		return
	}
	u, err := m.app.GetUser(context.Background(), m.selected.ID)
	if err == nil {
		m.selected = u
	}
}
