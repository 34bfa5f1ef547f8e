package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	mw "github.com/padraicbc/trms/middleware"
)

// DefaultRacesPrefix is where the race routes are mounted when no prefix is
// configured.
const DefaultRacesPrefix = "/api/ters"

// NewServer builds the echo instance with logging, recovery, CORS and every
// route mounted under /api. The race routes live under racesPrefix.
func NewServer(h *Handler, logger *zap.Logger, racesPrefix string) *echo.Echo {
	racesPrefix = "/" + strings.Trim(racesPrefix, "/")
	if racesPrefix == "/" {
		racesPrefix = DefaultRacesPrefix
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				logger.Error("http request", fields...)
			case v.Status >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	// Public
	e.POST("/api/signin", h.Signin)
	e.GET("/api/status", h.Status)

	ters := e.Group(racesPrefix)
	ters.GET("/races", h.Races)
	ters.GET("/races/upcoming", h.UpcomingRaces)
	ters.GET("/races/:id", h.Race)

	// Protected – require valid JWT in Authorization header
	auth := mw.JWT(h.JWTKey)
	ters.POST("/races", h.CreateRace, auth)
	ters.PUT("/races/:id", h.UpdateRace, auth)
	ters.DELETE("/races/:id", h.DeleteRace, auth)
	e.POST("/api/users", h.SaveUser, auth)

	return e
}
