package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/uptrace/bun"
)

// DateLayout is the calendar date format used on the wire and in prompts.
const DateLayout = "2006-01-02"

// TimeLayout is the time-of-day format stored on a Race.
const TimeLayout = "15:04"

// RaceType is one of a closed set of race categories.
type RaceType string

const (
	RoadRace     RaceType = "road_race"
	CrossCountry RaceType = "cross_country"
	Track        RaceType = "track"
	Trail        RaceType = "trail"
	Virtual      RaceType = "virtual"
	Triathlon    RaceType = "triathlon"
)

// RaceTypes lists every valid RaceType in display order.
var RaceTypes = []RaceType{RoadRace, CrossCountry, Track, Trail, Virtual, Triathlon}

var (
	// ErrInvalidRaceType is returned for a type outside RaceTypes.
	ErrInvalidRaceType = errors.New("invalid race type")
	// ErrInvalidRace is returned when any other field fails validation.
	ErrInvalidRace = errors.New("invalid race")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseRaceType returns the RaceType named by s.
func ParseRaceType(s string) (RaceType, error) {
	for _, rt := range RaceTypes {
		if string(rt) == s {
			return rt, nil
		}
	}
	names := make([]string, len(RaceTypes))
	for i, rt := range RaceTypes {
		names[i] = string(rt)
	}
	return "", fmt.Errorf("%w %q: must be one of %s", ErrInvalidRaceType, s, strings.Join(names, ", "))
}

// Race is a single race event. Pointer fields are optional columns.
type Race struct {
	bun.BaseModel `bun:"table:races,alias:r"`

	ID          int64     `bun:"race_id,pk,autoincrement" json:"raceID"`
	Name        string    `bun:"race_name,notnull" json:"name" validate:"required,max=255"`
	Description *string   `bun:"race_description,type:text" json:"description,omitempty"`
	Date        time.Time `bun:"race_date,notnull,type:date" json:"date"`
	TimeOfDay   *string   `bun:"race_time,type:time" json:"time,omitempty"`
	Venue       *string   `bun:"race_venue" json:"venue,omitempty" validate:"omitempty,max=255"`
	Type        RaceType  `bun:"race_type,notnull,default:'road_race'" json:"type"`
	Distances   string    `bun:"race_distances" json:"distances"`

	CourseLink       *string `bun:"course_link" json:"courseLink,omitempty" validate:"omitempty,url"`
	RegistrationLink *string `bun:"registration_link" json:"registrationLink,omitempty" validate:"omitempty,url"`

	RegistrationOpen  bool     `bun:"registration_open,notnull,default:true" json:"registrationOpen"`
	RegistrationLimit *int     `bun:"registration_limit" json:"registrationLimit,omitempty" validate:"omitempty,min=0"`
	EntryFee          *float64 `bun:"entry_fee,type:decimal(10,2)" json:"entryFee,omitempty" validate:"omitempty,min=0"`

	TimingMethod *string `bun:"timing_method" json:"timingMethod,omitempty"`
	ChipTiming   bool    `bun:"chip_timing,notnull,default:false" json:"chipTiming"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// RaceInput carries caller-supplied fields for NewRace. Empty strings leave
// the matching optional field unset.
type RaceInput struct {
	Name              string
	Description       string
	Date              time.Time
	Time              string
	Venue             string
	Type              string
	Distances         string
	CourseLink        string
	RegistrationLink  string
	RegistrationOpen  *bool
	RegistrationLimit *int
	EntryFee          *float64
	TimingMethod      string
	ChipTiming        bool
}

// NewRace validates in and builds a Race. An empty Type means road_race and a
// nil RegistrationOpen means open.
func NewRace(in RaceInput) (*Race, error) {
	rt := RoadRace
	if in.Type != "" {
		var err error
		if rt, err = ParseRaceType(strings.TrimSpace(in.Type)); err != nil {
			return nil, err
		}
	}
	r := &Race{
		Name:              strings.TrimSpace(in.Name),
		Description:       optional(in.Description),
		Date:              DateOf(in.Date),
		Venue:             optional(in.Venue),
		Type:              rt,
		Distances:         strings.TrimSpace(in.Distances),
		CourseLink:        optional(in.CourseLink),
		RegistrationLink:  optional(in.RegistrationLink),
		RegistrationOpen:  in.RegistrationOpen == nil || *in.RegistrationOpen,
		RegistrationLimit: in.RegistrationLimit,
		EntryFee:          in.EntryFee,
		TimingMethod:      optional(in.TimingMethod),
		ChipTiming:        in.ChipTiming,
	}
	if err := r.SetTimeOfDay(in.Time); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the type against the closed set and the remaining field rules.
func (r *Race) Validate() error {
	if _, err := ParseRaceType(string(r.Type)); err != nil {
		return err
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidRace)
	}
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidRace, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return fmt.Errorf("%w: %s", ErrInvalidRace, strings.Join(msgs, "; "))
	}
	return nil
}

// SetType replaces the type after checking it.
func (r *Race) SetType(s string) error {
	rt, err := ParseRaceType(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	r.Type = rt
	return nil
}

// SetTimeOfDay accepts HH:MM or HH:MM:SS; empty clears it.
func (r *Race) SetTimeOfDay(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		r.TimeOfDay = nil
		return nil
	}
	t, err := ParseTimeOfDay(s)
	if err != nil {
		return fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidRace, s)
	}
	r.TimeOfDay = &t
	return nil
}

// DateString formats Date as YYYY-MM-DD.
func (r Race) DateString() string {
	return r.Date.Format(DateLayout)
}

// VenueOr returns the venue or def when unset.
func (r Race) VenueOr(def string) string {
	if r.Venue == nil || *r.Venue == "" {
		return def
	}
	return *r.Venue
}

// DaysUntil counts whole days from today to the race date.
func (r Race) DaysUntil(today time.Time) int {
	return int(DateOf(r.Date).Sub(DateOf(today)).Hours() / 24)
}

// DateOf drops the clock part of t, keeping its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseTimeOfDay normalises HH:MM[:SS] to HH:MM.
func ParseTimeOfDay(s string) (string, error) {
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(TimeLayout), nil
		}
	}
	return "", fmt.Errorf("time %q must be HH:MM", s)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return strings.ToLower(fe.Field()) + " is required"
	case "url":
		return strings.ToLower(fe.Field()) + " must be a URL"
	case "min":
		return strings.ToLower(fe.Field()) + " must not be negative"
	case "max":
		return strings.ToLower(fe.Field()) + " is too long"
	}
	return fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
