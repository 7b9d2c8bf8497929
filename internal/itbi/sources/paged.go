package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/itbi-price-aggregation/internal/itbi"
	"github.com/i474232898/itbi-price-aggregation/internal/observability"
)

const (
	DefaultPageSize   = 5000
	DefaultMaxRecords = 500000
)

// PagedConfig configures a limit/offset paginated source.
type PagedConfig struct {
	Name       string
	BaseURL    string
	PageSize   int
	MaxRecords int // safety cap on the merged result; <= 0 uses DefaultMaxRecords
}

// PagedSource implements itbi.Source for an endpoint returning
// {"data": [...], "total_records": n} pages addressed by limit and offset.
type PagedSource struct {
	name       string
	baseURL    string
	pageSize   int
	maxRecords int

	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPagedSource builds a source. The client's Timeout bounds each page request.
func NewPagedSource(client *http.Client, cfg PagedConfig, logger *slog.Logger, m *observability.Metrics) *PagedSource {
	name := cfg.Name
	if name == "" {
		name = "itbi"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxRecords := cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PagedSource{
		name:       name,
		baseURL:    cfg.BaseURL,
		pageSize:   pageSize,
		maxRecords: maxRecords,
		client:     client,
		circuit:    newBreaker(name),
		logger:     logger.With("source", name),
		metrics:    m,
	}
}

func (p *PagedSource) Name() string {
	return p.name
}

// FetchAll requests pages sequentially and merges them in request order.
// It stops on a short or empty page, when the reported total is reached, or
// at the safety cap. Any failed page aborts the whole fetch.
func (p *PagedSource) FetchAll(ctx context.Context) ([]itbi.RawFeature, error) {
	var all []itbi.RawFeature
	offset := 0

	for {
		env, err := p.fetchPage(ctx, offset)
		if err != nil {
			fetchErr := &FetchError{Source: p.name, Offset: offset, Err: err}
			p.metrics.RecordFetchError(fetchErr.Cause())
			p.logger.Error("fetch aborted", "offset", offset, "cause", fetchErr.Cause(), "error", err)
			return nil, fetchErr
		}

		n := len(env.Data)
		if n == 0 {
			p.logger.Debug("empty page, pagination complete", "offset", offset)
			break
		}

		all = append(all, env.Data...)
		total := env.total()
		p.logger.Debug("page fetched", "offset", offset, "records", n, "accumulated", len(all), "total", total)

		if len(all) >= p.maxRecords {
			p.logger.Warn("safety cap reached", "cap", p.maxRecords, "accumulated", len(all))
			all = all[:p.maxRecords]
			break
		}
		if n < p.pageSize {
			break
		}
		if total > 0 && len(all) >= total {
			break
		}
		offset += p.pageSize
	}

	p.logger.Info("fetch complete", "records", len(all))
	return all, nil
}

func (p *PagedSource) fetchPage(ctx context.Context, offset int) (envelope, error) {
	buildRequest := func() (*http.Request, error) {
		u, err := url.Parse(p.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid source url: %w", err)
		}
		values := u.Query()
		values.Set("limit", strconv.Itoa(p.pageSize))
		values.Set("offset", strconv.Itoa(offset))
		u.RawQuery = values.Encode()

		req, err := http.NewRequest(http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	start := time.Now()
	body, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return envelope{}, err
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return envelope{}, err
	}
	p.metrics.RecordPage(len(env.Data), time.Since(start))
	return env, nil
}
