package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/trms/models"
)

type raceData struct {
	RaceID            int64     `json:"raceID"`
	Name              string    `json:"name"`
	Description       *string   `json:"description"`
	Date              string    `json:"date"`
	Time              *string   `json:"time"`
	Venue             *string   `json:"venue"`
	Type              string    `json:"type"`
	Distances         string    `json:"distances"`
	CourseLink        *string   `json:"courseLink"`
	RegistrationLink  *string   `json:"registrationLink"`
	RegistrationOpen  bool      `json:"registrationOpen"`
	RegistrationLimit *int      `json:"registrationLimit"`
	EntryFee          *float64  `json:"entryFee"`
	TimingMethod      *string   `json:"timingMethod"`
	ChipTiming        bool      `json:"chipTiming"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type raceRequest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Date              string   `json:"date"`
	Time              string   `json:"time"`
	Venue             string   `json:"venue"`
	Type              string   `json:"type"`
	Distances         string   `json:"distances"`
	CourseLink        string   `json:"courseLink"`
	RegistrationLink  string   `json:"registrationLink"`
	RegistrationOpen  *bool    `json:"registrationOpen"`
	RegistrationLimit *int     `json:"registrationLimit"`
	EntryFee          *float64 `json:"entryFee"`
	TimingMethod      string   `json:"timingMethod"`
	ChipTiming        bool     `json:"chipTiming"`
}

func toRaceData(r models.Race) raceData {
	return raceData{
		RaceID:            r.ID,
		Name:              r.Name,
		Description:       r.Description,
		Date:              r.DateString(),
		Time:              r.TimeOfDay,
		Venue:             r.Venue,
		Type:              string(r.Type),
		Distances:         r.Distances,
		CourseLink:        r.CourseLink,
		RegistrationLink:  r.RegistrationLink,
		RegistrationOpen:  r.RegistrationOpen,
		RegistrationLimit: r.RegistrationLimit,
		EntryFee:          r.EntryFee,
		TimingMethod:      r.TimingMethod,
		ChipTiming:        r.ChipTiming,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func toRaceList(races []models.Race) []raceData {
	result := make([]raceData, len(races))
	for i, r := range races {
		result[i] = toRaceData(r)
	}
	return result
}

// bindRace decodes the body and builds a validated Race from it.
func bindRace(c echo.Context) (*models.Race, error) {
	var req raceRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	race, err := models.NewRace(models.RaceInput{
		Name:              req.Name,
		Description:       req.Description,
		Date:              date,
		Time:              req.Time,
		Venue:             req.Venue,
		Type:              req.Type,
		Distances:         req.Distances,
		CourseLink:        req.CourseLink,
		RegistrationLink:  req.RegistrationLink,
		RegistrationOpen:  req.RegistrationOpen,
		RegistrationLimit: req.RegistrationLimit,
		EntryFee:          req.EntryFee,
		TimingMethod:      req.TimingMethod,
		ChipTiming:        req.ChipTiming,
	})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return race, nil
}

func raceID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid race id")
	}
	return id, nil
}

// Races returns every race, newest date first.
func (h *Handler) Races(c echo.Context) error {
	return c.JSON(http.StatusOK, toRaceList(h.races.GetAll(c.Request().Context())))
}

// UpcomingRaces returns races dated today or later, soonest first.
func (h *Handler) UpcomingRaces(c echo.Context) error {
	return c.JSON(http.StatusOK, toRaceList(h.races.GetUpcoming(c.Request().Context())))
}

// Race returns a single race by id.
func (h *Handler) Race(c echo.Context) error {
	id, err := raceID(c)
	if err != nil {
		return err
	}
	r := h.races.GetByID(c.Request().Context(), id)
	if r == nil {
		return echo.NewHTTPError(http.StatusNotFound, "race not found")
	}
	return c.JSON(http.StatusOK, toRaceData(*r))
}

// CreateRace validates and inserts a new race.
func (h *Handler) CreateRace(c echo.Context) error {
	race, err := bindRace(c)
	if err != nil {
		return err
	}
	if _, ok := h.races.Create(c.Request().Context(), race); !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create race")
	}
	return c.JSON(http.StatusCreated, toRaceData(*race))
}

// UpdateRace replaces every field of an existing race.
func (h *Handler) UpdateRace(c echo.Context) error {
	id, err := raceID(c)
	if err != nil {
		return err
	}
	race, err := bindRace(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if h.races.GetByID(ctx, id) == nil {
		return echo.NewHTTPError(http.StatusNotFound, "race not found")
	}
	if !h.races.Update(ctx, id, race) {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update race")
	}

	if updated := h.races.GetByID(ctx, id); updated != nil {
		return c.JSON(http.StatusOK, toRaceData(*updated))
	}
	race.ID = id
	return c.JSON(http.StatusOK, toRaceData(*race))
}

// DeleteRace removes a race by id.
func (h *Handler) DeleteRace(c echo.Context) error {
	id, err := raceID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if h.races.GetByID(ctx, id) == nil {
		return echo.NewHTTPError(http.StatusNotFound, "race not found")
	}
	if !h.races.Delete(ctx, id) {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete race")
	}
	return c.NoContent(http.StatusNoContent)
}

// Status reports the database binding with a live connectivity check.
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.status.Status(c.Request().Context()))
}

