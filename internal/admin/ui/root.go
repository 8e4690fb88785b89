package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/notepid/twilight_forum/internal/admin/app"
)

type screen int

const (
	screenHome screen = iota
	screenUsers
	screenAreas
)

type rootModel struct {
	app *app.App

	width  int
	height int

	active screen

	homeList list.Model
	err      error

	users *usersModel
	areas *areasModel
}

type menuItem struct {
	title string
	desc  string
	to    screen
}

func (m menuItem) Title() string       { return m.title }
func (m menuItem) Description() string { return m.desc }
func (m menuItem) FilterValue() string { return m.title }

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func NewRootModel(a *app.App) tea.Model {
	items := []list.Item{
		menuItem{title: "Users", desc: "Roles, passwords and sessions", to: screenUsers},
		menuItem{title: "Areas", desc: "Create and delete areas, manage secret access", to: screenAreas},
		menuItem{title: "Quit", desc: "Exit", to: -1},
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Twilight Forum Admin"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(true)

	return &rootModel{
		app:      a,
		active:   screenHome,
		homeList: l,
	}
}

func (m *rootModel) Init() tea.Cmd {
	return nil
}

func (m *rootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.homeList.SetSize(msg.Width, msg.Height-2)
		if m.users != nil {
			m.users.SetSize(msg.Width, msg.Height)
		}
		if m.areas != nil {
			m.areas.SetSize(msg.Width, msg.Height)
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	}

	switch m.active {
	case screenHome:
		return m.updateHome(msg)
	case screenUsers:
		m.activate(screenUsers)
		cmd := m.users.Update(msg)
		if m.users.Done {
			m.active = screenHome
			m.users = nil
		}
		return m, cmd
	case screenAreas:
		m.activate(screenAreas)
		cmd := m.areas.Update(msg)
		if m.areas.Done {
			m.active = screenHome
			m.areas = nil
		}
		return m, cmd
	default:
		return m, nil
	}
}

func (m *rootModel) updateHome(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.homeList, cmd = m.homeList.Update(msg)

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		if it, ok := m.homeList.SelectedItem().(menuItem); ok {
			if it.to == -1 {
				return m, tea.Quit
			}
			m.activate(it.to)
			return m, nil
		}
	}

	return m, cmd
}

func (m *rootModel) activate(s screen) {
	m.active = s

	switch s {
	case screenUsers:
		if m.users == nil {
			m.users = newUsersModel(m.app)
			m.users.SetSize(m.width, m.height)
		}
	case screenAreas:
		if m.areas == nil {
			m.areas = newAreasModel(m.app)
			m.areas.SetSize(m.width, m.height)
		}
	}
}

func (m *rootModel) View() string {
	if m.err != nil {
		return errStyle.Render("Error: ") + m.err.Error()
	}

	switch m.active {
	case screenHome:
		return m.homeList.View()
	case screenUsers:
		if m.users == nil {
			return "Loading users..."
		}
		return m.users.View()
	case screenAreas:
		if m.areas == nil {
			return "Loading areas..."
		}
		return m.areas.View()
	default:
		return titleStyle.Render("Unknown screen") + "\n" + fmt.Sprint(m.active)
	}
}
