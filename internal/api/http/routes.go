package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/itbi-price-aggregation/internal/itbi"
	"github.com/i474232898/itbi-price-aggregation/internal/itbi/sources"
	"github.com/i474232898/itbi-price-aggregation/internal/store"
)

var validate = validator.New()

const defaultRecordLimit = 500

// Service is what the handlers need from the ITBI service.
type Service interface {
	Refresh(ctx context.Context) (*itbi.Snapshot, error)
	Status() itbi.Status
	Records(class itbi.UseClass, street string) ([]itbi.PropertyRecord, error)
	Suggest(class itbi.UseClass, query string) ([]itbi.Suggestion, error)
	Report(class itbi.UseClass, street string) (itbi.StreetReport, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
// refreshTimeout bounds a manual refresh; 0 means no extra bound.
func RegisterRoutes(app *fiber.App, service Service, refreshTimeout time.Duration) {
	v1 := app.Group("/api/v1")

	v1.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(service.Status())
	})

	v1.Get("/streets/suggest", func(c *fiber.Ctx) error {
		var q suggestQuery
		if err := bindQuery(c, &q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		suggestions, err := service.Suggest(useClass(q.Type), q.Query)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(fiber.Map{
			"query":       q.Query,
			"suggestions": suggestions,
		})
	})

	v1.Get("/streets/report", func(c *fiber.Ctx) error {
		var q streetQuery
		if err := bindQuery(c, &q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := service.Report(useClass(q.Type), q.Street)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(report)
	})

	v1.Get("/records", func(c *fiber.Ctx) error {
		var q recordsQuery
		if err := bindQuery(c, &q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		records, err := service.Records(useClass(q.Type), q.Street)
		if err != nil {
			return serviceError(err)
		}

		limit := q.Limit
		if limit == 0 {
			limit = defaultRecordLimit
		}
		total := len(records)
		if len(records) > limit {
			records = records[:limit]
		}
		return c.JSON(fiber.Map{
			"total":   total,
			"records": records,
		})
	})

	v1.Post("/refresh", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if refreshTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, refreshTimeout)
			defer cancel()
		}

		snap, err := service.Refresh(ctx)
		if err != nil {
			if errors.Is(err, sources.ErrFetch) {
				return fiber.NewError(fiber.StatusBadGateway, "failed to fetch property data: "+err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"snapshotId": snap.ID,
			"loadedAt":   snap.LoadedAt,
			"records":    len(snap.Records),
			"stats":      snap.Stats,
		})
	})
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotLoaded):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, itbi.ErrNoMatches):
		return fiber.NewError(fiber.StatusNotFound, "no property records for requested street")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to query property data")
	}
}

// useClass maps the "type" query parameter; empty means residential.
func useClass(t string) itbi.UseClass {
	if t == "commercial" {
		return itbi.UseNonResidential
	}
	return itbi.UseResidential
}

type suggestQuery struct {
	Type  string `query:"type" validate:"omitempty,oneof=residential commercial"`
	Query string `query:"q" validate:"required,min=2,max=200"`
}

type streetQuery struct {
	Type   string `query:"type" validate:"omitempty,oneof=residential commercial"`
	Street string `query:"street" validate:"required,max=200"`
}

type recordsQuery struct {
	Type   string `query:"type" validate:"omitempty,oneof=residential commercial"`
	Street string `query:"street" validate:"max=200"`
	Limit  int    `query:"limit" validate:"gte=0,lte=10000"`
}

type trimmer interface {
	trim()
}

func (q *suggestQuery) trim() { q.Query = strings.TrimSpace(q.Query) }
func (q *streetQuery) trim()  { q.Street = strings.TrimSpace(q.Street) }
func (q *recordsQuery) trim() { q.Street = strings.TrimSpace(q.Street) }

// bindQuery parses, trims and validates query parameters into dst.
func bindQuery(c *fiber.Ctx, dst trimmer) error {
	if err := c.QueryParser(dst); err != nil {
		return err
	}
	dst.trim()
	return validate.Struct(dst)
}
