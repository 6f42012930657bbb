package httpadapter

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/store"
	"github.com/couchcryptid/air-quality-etl/internal/aqi"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// ReportStore is the read side of the report store.
type ReportStore interface {
	Latest(lat, lon float64) (domain.AirQualityReport, error)
	Range(lat, lon float64, from, to time.Time) ([]domain.AirQualityReport, error)
}

// RegisterRoutes wires the API handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, reports ReportStore) {
	v1 := app.Group("/api/v1")

	v1.Get("/aqi", func(c *fiber.Ctx) error {
		raw := c.Query("pm25")
		if raw == "" {
			return fiber.NewError(fiber.StatusBadRequest, "pm25 query parameter is required")
		}

		var pm25 *float64
		if f, ok := aqi.ParseConcentration(raw); ok {
			pm25 = &f
		}
		value := aqi.PM25ToAQI(raw)

		return c.JSON(fiber.Map{
			"pm25":     pm25,
			"aqi":      value,
			"category": aqi.CategoryOf(value),
			"advice":   aqi.Advice(value),
			"alert":    aqi.IsAlert(value),
		})
	})

	v1.Post("/forecast", func(c *fiber.Ctx) error {
		var req forecastRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid forecast request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		est := forecast.Blend(req.inputs())
		value := domain.ForecastAQI(est.Value)

		return c.JSON(fiber.Map{
			"forecast":    est.Value,
			"aqi":         value,
			"category":    aqi.CategoryOf(value),
			"wind_factor": est.WindFactor,
			"rain_factor": est.RainFactor,
		})
	})

	v1.Get("/reports/latest", func(c *fiber.Ctx) error {
		loc, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := reports.Latest(loc.Lat, loc.Lon)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no air quality report for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch air quality report")
		}

		return c.JSON(report)
	})

	v1.Get("/reports/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		history, err := reports.Range(req.Location.Lat, req.Location.Lon, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no air quality history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch air quality history")
		}

		return c.JSON(fiber.Map{
			"location": req.Location,
			"from":     req.From,
			"to":       req.To,
			"reports":  history,
		})
	})
}

// forecastRequest mirrors forecast.Inputs. Each sample list is capped at one
// week of hourly values. Wind speeds must not be negative.
type forecastRequest struct {
	GroundVals []float64      `json:"groundVals" validate:"max=168,dive,finite"`
	SatVals    []float64      `json:"satVals" validate:"max=168,dive,finite"`
	Weather    weatherRequest `json:"weather"`
}

type weatherRequest struct {
	WindSpeed *float64       `json:"wind_speed" validate:"omitempty,finite,gte=0"`
	Wind      *windRequest   `json:"wind" validate:"omitempty"`
	Rain      *forecast.Rain `json:"rain"`
}

type windRequest struct {
	Speed *float64 `json:"speed" validate:"omitempty,finite,gte=0"`
}

func (r forecastRequest) inputs() forecast.Inputs {
	w := forecast.Weather{WindSpeed: r.Weather.WindSpeed, Rain: r.Weather.Rain}
	if r.Weather.Wind != nil {
		w.Wind = &forecast.Wind{Speed: r.Weather.Wind.Speed}
	}
	return forecast.Inputs{GroundVals: r.GroundVals, SatVals: r.SatVals, Weather: w}
}

// locationQuery identifies a stored location by coordinates.
type locationQuery struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	var q locationQuery

	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" || lonStr == "" {
		return q, errors.New("lat and lon query parameters are required")
	}

	var err error
	if q.Lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return q, errors.New("lat must be a number")
	}
	if q.Lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return q, errors.New("lon must be a number")
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location locationQuery
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	h.Location = loc

	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	if h.From, err = parseTime(fromStr); err != nil {
		return err
	}
	if h.To, err = parseTime(toStr); err != nil {
		return err
	}
	return nil
}

// parseTime accepts RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
