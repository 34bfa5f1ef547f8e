package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padraicbc/trms/db"
	"github.com/padraicbc/trms/models"
)

type fakeStore struct {
	races   []models.Race
	created []models.Race
	updated map[int64]models.Race
	deleted []int64
	fail    bool
}

func (f *fakeStore) Create(ctx context.Context, r *models.Race) (int64, bool) {
	if f.fail {
		return 0, false
	}
	r.ID = int64(len(f.races) + 100)
	f.created = append(f.created, *r)
	f.races = append(f.races, *r)
	return r.ID, true
}

func (f *fakeStore) GetAll(ctx context.Context) []models.Race {
	return append([]models.Race(nil), f.races...)
}

func (f *fakeStore) Update(ctx context.Context, id int64, r *models.Race) bool {
	if f.fail {
		return false
	}
	if f.updated == nil {
		f.updated = map[int64]models.Race{}
	}
	f.updated[id] = *r
	return true
}

func (f *fakeStore) Delete(ctx context.Context, id int64) bool {
	f.deleted = append(f.deleted, id)
	kept := f.races[:0]
	for _, r := range f.races {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	f.races = kept
	return true
}

type fakeStatus struct{}

func (fakeStatus) Status(ctx context.Context) db.Status {
	return db.Status{Connected: true, Cloud: true, Host: "cloud.example", Database: "trms_db", PoolSize: 10}
}

func race(t *testing.T, id int64, name string, day int) models.Race {
	t.Helper()
	r, err := models.NewRace(models.RaceInput{Name: name, Date: time.Date(2025, 5, day, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	r.ID = id
	return *r
}

// drain runs a database command and feeds its result, and any follow-up
// command's result, back into the model.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				m = drain(t, m, c)
			}
			return m
		}
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m
}

func press(t *testing.T, m Model, key tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(key)
	return next.(Model), cmd
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = press(t, m, keys(s))
	return m
}

func loaded(t *testing.T, store *fakeStore) Model {
	t.Helper()
	m := New(context.Background(), store, fakeStatus{})
	return drain(t, m, m.Init())
}

func TestInitLoadsStatusAndRaces(t *testing.T) {
	m := loaded(t, &fakeStore{races: []models.Race{race(t, 1, "Spring 5K", 15)}})

	view := m.View()
	assert.Contains(t, view, "Database: CLOUD - cloud.example")
	assert.Contains(t, view, "Spring 5K")
	assert.Contains(t, view, "2025-05-15 • TBD")
}

func TestEmptyList(t *testing.T) {
	m := loaded(t, &fakeStore{})
	assert.Contains(t, m.View(), "No races found")
}

func TestQuit(t *testing.T) {
	m := loaded(t, &fakeStore{})
	_, cmd := press(t, m, keys("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestDeleteAfterConfirmation(t *testing.T) {
	store := &fakeStore{races: []models.Race{race(t, 1, "First", 1), race(t, 2, "Second", 2)}}
	m := loaded(t, store)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, keys("d"))
	assert.Contains(t, m.View(), "Delete Second?")

	m, cmd := press(t, m, keys("y"))
	m = drain(t, m, cmd)
	assert.Equal(t, []int64{2}, store.deleted)
	assert.Equal(t, screenList, m.screen)
	assert.Len(t, m.list, 1)
	assert.Equal(t, 0, m.cursor)
	assert.Contains(t, m.View(), `Race "Second" deleted`)
}

func TestDeleteCancelled(t *testing.T) {
	store := &fakeStore{races: []models.Race{race(t, 1, "First", 1)}}
	m := loaded(t, store)

	m, _ = press(t, m, keys("d"))
	m, cmd := press(t, m, keys("n"))
	assert.Nil(t, cmd)
	assert.Empty(t, store.deleted)
	assert.Contains(t, m.View(), "Deletion cancelled")
}

func TestCreateRaceFromForm(t *testing.T) {
	store := &fakeStore{}
	m := loaded(t, store)

	m, _ = press(t, m, keys("n"))
	assert.Contains(t, m.View(), "New Race")
	m = typeText(t, m, "Spring 5K")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "City Park")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "2025-03-15")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m = drain(t, m, cmd)

	require.Len(t, store.created, 1)
	got := store.created[0]
	assert.Equal(t, "Spring 5K", got.Name)
	assert.Equal(t, "City Park", got.VenueOr(""))
	assert.Equal(t, models.RoadRace, got.Type)
	assert.Equal(t, screenList, m.screen)
	assert.Contains(t, m.View(), `Race "Spring 5K" created`)
	assert.Contains(t, m.View(), "Spring 5K")
}

func TestFormRejectsBadDate(t *testing.T) {
	store := &fakeStore{}
	m := loaded(t, store)

	m, _ = press(t, m, keys("n"))
	m = typeText(t, m, "Spring 5K")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "15/03/2025")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Nil(t, cmd)
	assert.Equal(t, screenForm, m.screen)
	assert.Contains(t, m.View(), "must be YYYY-MM-DD")
	assert.Empty(t, store.created)
}

func TestFormRejectsBadType(t *testing.T) {
	store := &fakeStore{}
	m := loaded(t, store)

	m, _ = press(t, m, keys("n"))
	m = typeText(t, m, "Relay")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m = typeText(t, m, "marathon")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m = typeText(t, m, "2025-03-15")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "invalid race type")
	assert.Empty(t, store.created)
}

func TestEditRace(t *testing.T) {
	store := &fakeStore{races: []models.Race{race(t, 7, "Old Name", 9)}}
	m := loaded(t, store)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.View(), "Edit Race")
	assert.Equal(t, "Old Name", m.inputs[fieldName].Value())
	assert.Equal(t, "2025-05-09", m.inputs[fieldDate].Value())

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlU})
	m = typeText(t, m, "New Name")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m = drain(t, m, cmd)

	require.Contains(t, store.updated, int64(7))
	assert.Equal(t, "New Name", store.updated[7].Name)
	assert.Equal(t, "2025-05-09", store.updated[7].DateString())
	assert.Equal(t, screenList, m.screen)
}

func TestFailedSaveKeepsForm(t *testing.T) {
	store := &fakeStore{fail: true}
	m := loaded(t, store)

	m, _ = press(t, m, keys("n"))
	m = typeText(t, m, "Spring 5K")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m = typeText(t, m, "2025-03-15")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m = drain(t, m, cmd)
	assert.Equal(t, screenForm, m.screen)
	assert.Contains(t, m.View(), "Failed to save race")
}

func TestEscapeLeavesForm(t *testing.T) {
	m := loaded(t, &fakeStore{})
	m, _ = press(t, m, keys("n"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, screenList, m.screen)
}
