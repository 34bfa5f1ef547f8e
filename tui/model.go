// Package tui is the interactive terminal front end for race management.
//
// The Model follows the bubbletea message loop: every database call runs as a
// tea.Cmd and its result comes back through Update as a message. The Model is
// not safe for use outside that loop.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/padraicbc/trms/db"
	"github.com/padraicbc/trms/models"
)

// RaceStore is the race accessor the UI drives.
type RaceStore interface {
	Create(ctx context.Context, r *models.Race) (int64, bool)
	GetAll(ctx context.Context) []models.Race
	Update(ctx context.Context, id int64, r *models.Race) bool
	Delete(ctx context.Context, id int64) bool
}

// StatusReporter reports which database the UI is bound to.
type StatusReporter interface {
	Status(ctx context.Context) db.Status
}

type screen int

const (
	screenList screen = iota
	screenForm
	screenConfirm
)

// form field order
const (
	fieldName = iota
	fieldVenue
	fieldDate
	fieldType
	fieldCount
)

type (
	racesMsg  []models.Race
	statusMsg db.Status
	savedMsg  struct {
		ok      bool
		created bool
		name    string
	}
	deletedMsg struct {
		ok   bool
		name string
	}
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
)

// Model is the bubbletea model for the race list and its dialogs.
type Model struct {
	ctx    context.Context
	races  RaceStore
	status StatusReporter

	db      db.Status
	list    []models.Race
	loaded  bool
	cursor  int
	screen  screen
	inputs  []textinput.Model
	focus   int
	editing *models.Race
	message string
	failed  bool
}

// New returns a Model; ctx bounds every database call it makes.
func New(ctx context.Context, races RaceStore, status StatusReporter) Model {
	return Model{
		ctx:    ctx,
		races:  races,
		status: status,
		inputs: newInputs(),
	}
}

func newInputs() []textinput.Model {
	inputs := make([]textinput.Model, fieldCount)
	labels := [fieldCount]string{"Race Name", "Venue", "Date (YYYY-MM-DD)", "Type"}
	for i := range inputs {
		ti := textinput.New()
		ti.Prompt = fmt.Sprintf("%-18s ", labels[i]+":")
		ti.CharLimit = 255
		inputs[i] = ti
	}
	inputs[fieldType].Placeholder = string(models.RoadRace)
	return inputs
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadStatus(), m.loadRaces())
}

func (m Model) loadStatus() tea.Cmd {
	return func() tea.Msg {
		return statusMsg(m.status.Status(m.ctx))
	}
}

func (m Model) loadRaces() tea.Cmd {
	return func() tea.Msg {
		return racesMsg(m.races.GetAll(m.ctx))
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.db = db.Status(msg)
		return m, nil

	case racesMsg:
		m.list = msg
		m.loaded = true
		if m.cursor >= len(m.list) {
			m.cursor = max(len(m.list)-1, 0)
		}
		return m, nil

	case savedMsg:
		if !msg.ok {
			m.setError("Failed to save race")
			return m, nil
		}
		m.screen = screenList
		m.editing = nil
		verb := "updated"
		if msg.created {
			verb = "created"
		}
		m.setInfo(fmt.Sprintf("Race %q %s", msg.name, verb))
		return m, m.loadRaces()

	case deletedMsg:
		if !msg.ok {
			m.setError(fmt.Sprintf("Failed to delete race %q", msg.name))
			return m, nil
		}
		m.setInfo(fmt.Sprintf("Race %q deleted", msg.name))
		return m, m.loadRaces()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.screen {
		case screenForm:
			return m.updateForm(msg)
		case screenConfirm:
			return m.updateConfirm(msg)
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.list)-1 {
			m.cursor++
		}
	case "r":
		m.message = ""
		return m, tea.Batch(m.loadStatus(), m.loadRaces())
	case "n":
		return m.openForm(nil)
	case "e", "enter":
		if r := m.selected(); r != nil {
			return m.openForm(r)
		}
	case "d", "delete":
		if m.selected() != nil {
			m.screen = screenConfirm
		}
	}
	return m, nil
}

func (m Model) selected() *models.Race {
	if m.cursor < 0 || m.cursor >= len(m.list) {
		return nil
	}
	r := m.list[m.cursor]
	return &r
}

// openForm shows the race dialog, prefilled when r is not nil.
func (m Model) openForm(r *models.Race) (tea.Model, tea.Cmd) {
	m.screen = screenForm
	m.editing = r
	m.message = ""
	m.inputs = newInputs()
	if r != nil {
		m.inputs[fieldName].SetValue(r.Name)
		m.inputs[fieldVenue].SetValue(r.VenueOr(""))
		m.inputs[fieldDate].SetValue(r.DateString())
		m.inputs[fieldType].SetValue(string(r.Type))
	}
	m.focus = fieldName
	return m, m.inputs[fieldName].Focus()
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenList
		m.editing = nil
		m.message = ""
		return m, nil
	case "ctrl+s":
		return m.save()
	case "enter":
		if m.focus == fieldCount-1 {
			return m.save()
		}
		return m.moveFocus(1)
	case "tab", "down":
		return m.moveFocus(1)
	case "shift+tab", "up":
		return m.moveFocus(-1)
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) moveFocus(delta int) (tea.Model, tea.Cmd) {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	return m, m.inputs[m.focus].Focus()
}

// save validates the form and issues the create or update. Validation
// problems keep the dialog open with the error shown.
func (m Model) save() (tea.Model, tea.Cmd) {
	value := func(i int) string { return strings.TrimSpace(m.inputs[i].Value()) }

	date, err := models.ParseDate(value(fieldDate))
	if err != nil {
		m.setError(err.Error())
		return m, nil
	}

	var race *models.Race
	if m.editing != nil {
		r := *m.editing
		r.Name = value(fieldName)
		r.Venue = nil
		if v := value(fieldVenue); v != "" {
			r.Venue = &v
		}
		r.Date = date
		if t := value(fieldType); t != "" {
			if err := r.SetType(t); err != nil {
				m.setError(err.Error())
				return m, nil
			}
		}
		if err := r.Validate(); err != nil {
			m.setError(err.Error())
			return m, nil
		}
		race = &r
	} else {
		race, err = models.NewRace(models.RaceInput{
			Name:  value(fieldName),
			Venue: value(fieldVenue),
			Date:  date,
			Type:  value(fieldType),
		})
		if err != nil {
			m.setError(err.Error())
			return m, nil
		}
	}

	editing := m.editing
	return m, func() tea.Msg {
		if editing != nil {
			return savedMsg{ok: m.races.Update(m.ctx, editing.ID, race), name: race.Name}
		}
		_, ok := m.races.Create(m.ctx, race)
		return savedMsg{ok: ok, created: true, name: race.Name}
	}
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	r := m.selected()
	switch msg.String() {
	case "y", "Y":
		m.screen = screenList
		if r == nil {
			return m, nil
		}
		return m, func() tea.Msg {
			return deletedMsg{ok: m.races.Delete(m.ctx, r.ID), name: r.Name}
		}
	case "n", "N", "esc":
		m.screen = screenList
		m.setInfo("Deletion cancelled")
	}
	return m, nil
}

func (m *Model) setError(s string) {
	m.message = s
	m.failed = true
}

func (m *Model) setInfo(s string) {
	m.message = s
	m.failed = false
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("TERS: Event Registration"))
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render(fmt.Sprintf("Database: %s - %s", m.db.Kind(), m.db.Host)))
	b.WriteString("\n\n")

	switch m.screen {
	case screenForm:
		m.viewForm(&b)
	case screenConfirm:
		if r := m.selected(); r != nil {
			b.WriteString(warnStyle.Render(fmt.Sprintf("Delete %s?", r.Name)))
			b.WriteString("\nThis action cannot be undone.\n\n")
		}
		b.WriteString(subtleStyle.Render("y delete • n cancel"))
	default:
		m.viewList(&b)
	}

	if m.message != "" {
		b.WriteString("\n\n")
		if m.failed {
			b.WriteString(errorStyle.Render("Error: " + m.message))
		} else {
			b.WriteString(m.message)
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewList(b *strings.Builder) {
	switch {
	case !m.loaded:
		b.WriteString("Loading races...\n")
	case len(m.list) == 0:
		b.WriteString("No races found\n")
	default:
		for i, r := range m.list {
			line := fmt.Sprintf("%s\n    %s • %s", r.Name, r.DateString(), r.VenueOr("TBD"))
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render("n new • e edit • d delete • r refresh • q quit"))
}

func (m Model) viewForm(b *strings.Builder) {
	title := "New Race"
	if m.editing != nil {
		title = "Edit Race"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render("tab next field • ctrl+s save • esc cancel"))
}
