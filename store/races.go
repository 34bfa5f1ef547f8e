package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/trms/models"
)

const racesTable = "races"

var raceColumns = []string{
	"race_name", "race_description", "race_date", "race_time", "race_venue",
	"race_type", "race_distances", "course_link", "registration_link",
	"registration_open", "registration_limit", "entry_fee",
	"timing_method", "chip_timing",
}

var insertRaceSQL = "INSERT INTO " + racesTable + " (" + strings.Join(raceColumns, ", ") + ") VALUES (" +
	strings.TrimSuffix(strings.Repeat("?, ", len(raceColumns)), ", ") + ")"

var updateRaceSQL = "UPDATE " + racesTable + " SET " + strings.Join(raceColumns, " = ?, ") +
	" = ?, updated_at = CURRENT_TIMESTAMP WHERE race_id = ?"

const (
	selectAllRacesSQL = "SELECT * FROM " + racesTable + " ORDER BY race_date DESC"
	selectRaceByIDSQL = "SELECT * FROM " + racesTable + " WHERE race_id = ?"
	selectUpcomingSQL = "SELECT * FROM " + racesTable + " WHERE race_date >= ? ORDER BY race_date ASC"
	deleteRaceSQL     = "DELETE FROM " + racesTable + " WHERE race_id = ?"
)

// Races is the race data accessor.
type Races struct {
	db  Executor
	log *zap.Logger
	now func() time.Time
}

// NewRaces returns a Races backed by exec.
func NewRaces(exec Executor, log *zap.Logger) *Races {
	return &Races{db: exec, log: log, now: time.Now}
}

// Create inserts r and returns its new id. On success r.ID is set.
func (s *Races) Create(ctx context.Context, r *models.Race) (int64, bool) {
	id, err := s.db.ExecuteInsert(ctx, insertRaceSQL, "race_id", raceArgs(r)...)
	if err != nil {
		s.log.Error("creating race", zap.String("name", r.Name), zap.Error(err))
		return 0, false
	}
	r.ID = id
	return id, true
}

// GetAll returns every race, newest date first. A row that cannot be scanned
// or carries an unknown type fails the whole call.
func (s *Races) GetAll(ctx context.Context) []models.Race {
	races, err := s.query(ctx, selectAllRacesSQL)
	if err != nil {
		s.log.Error("fetching races", zap.Error(err))
		return nil
	}
	return races
}

// GetByID returns the race or nil when it does not exist.
func (s *Races) GetByID(ctx context.Context, id int64) *models.Race {
	races, err := s.query(ctx, selectRaceByIDSQL, id)
	if err != nil {
		s.log.Error("fetching race", zap.Int64("race_id", id), zap.Error(err))
		return nil
	}
	if len(races) == 0 {
		return nil
	}
	return &races[0]
}

// Update overwrites race id with r. False when nothing matched or on error.
func (s *Races) Update(ctx context.Context, id int64, r *models.Race) bool {
	args := append(raceArgs(r), id)
	n, err := s.db.ExecuteUpdate(ctx, updateRaceSQL, args...)
	if err != nil {
		s.log.Error("updating race", zap.Int64("race_id", id), zap.Error(err))
		return false
	}
	return n > 0
}

// Delete removes race id. False when nothing matched or on error.
func (s *Races) Delete(ctx context.Context, id int64) bool {
	n, err := s.db.ExecuteUpdate(ctx, deleteRaceSQL, id)
	if err != nil {
		s.log.Error("deleting race", zap.Int64("race_id", id), zap.Error(err))
		return false
	}
	return n > 0
}

// GetUpcoming returns races dated today or later, soonest first.
func (s *Races) GetUpcoming(ctx context.Context) []models.Race {
	today := models.DateOf(s.now())
	races, err := s.query(ctx, selectUpcomingSQL, today.Format(models.DateLayout))
	if err != nil {
		s.log.Error("fetching upcoming races", zap.Error(err))
		return nil
	}
	upcoming := races[:0]
	for _, r := range races {
		if !r.Date.Before(today) {
			upcoming = append(upcoming, r)
		}
	}
	return upcoming
}

func (s *Races) query(ctx context.Context, query string, args ...any) ([]models.Race, error) {
	var races []models.Race
	if err := s.db.QueryInto(ctx, &races, query, args...); err != nil {
		return nil, err
	}
	for i := range races {
		if err := normalize(&races[i]); err != nil {
			return nil, err
		}
	}
	return races, nil
}

// normalize brings a scanned race to the shape NewRace builds: a UTC calendar
// date, an HH:MM time and a known type. Servers hand TIME back as HH:MM:SS.
func normalize(r *models.Race) error {
	if _, err := models.ParseRaceType(string(r.Type)); err != nil {
		return fmt.Errorf("race %d: %w", r.ID, err)
	}
	r.Date = models.DateOf(r.Date)
	if r.TimeOfDay != nil {
		tod, err := models.ParseTimeOfDay(*r.TimeOfDay)
		if err != nil {
			return fmt.Errorf("race %d: %w", r.ID, err)
		}
		r.TimeOfDay = &tod
	}
	return nil
}

// raceArgs lists r's values in raceColumns order.
func raceArgs(r *models.Race) []any {
	var tod any
	if r.TimeOfDay != nil {
		tod = *r.TimeOfDay + ":00"
	}
	return []any{
		r.Name,
		nullable(r.Description),
		r.DateString(),
		tod,
		nullable(r.Venue),
		string(r.Type),
		r.Distances,
		nullable(r.CourseLink),
		nullable(r.RegistrationLink),
		r.RegistrationOpen,
		nullable(r.RegistrationLimit),
		nullable(r.EntryFee),
		nullable(r.TimingMethod),
		r.ChipTiming,
	}
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
