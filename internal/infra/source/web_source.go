// internal/infra/source/web_source.go
package source

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"activity_scraper/internal/domain/acquisition"
	"activity_scraper/internal/domain/activity"
	"activity_scraper/internal/infra/database"
	"activity_scraper/internal/infra/scraper"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type activityScraper interface {
	ScrapeActivities(ctx context.Context) ([]activity.Activity, error)
}

// FactoryOptions configures the handles built by WebSourceFactory.
type FactoryOptions struct {
	Scraper     scraper.Options
	HTTPTimeout time.Duration
	RatePerSec  float64
}

// WebSourceFactory builds one WebSource per cycle. Each source owns its own
// HTTP transport, rate limiter and reserved database connection.
type WebSourceFactory struct {
	db     *sql.DB
	opts   FactoryOptions
	logger *logrus.Entry
}

var _ acquisition.Factory = (*WebSourceFactory)(nil)

func NewWebSourceFactory(db *sql.DB, opts FactoryOptions, logger *logrus.Entry) *WebSourceFactory {
	return &WebSourceFactory{db: db, opts: opts, logger: logger}
}

func (f *WebSourceFactory) NewSource(ctx context.Context) (acquisition.Source, error) {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, database.MarkConnectionError(errors.Wrap(err, "reserve database connection"))
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{Transport: transport, Timeout: f.opts.HTTPTimeout}
	limiter := rate.NewLimiter(rate.Limit(f.opts.RatePerSec), 1)

	return &WebSource{
		scraper:   scraper.NewHTTPScraper(client, limiter, f.opts.Scraper, f.logger.WithField("component", "scraper")),
		repo:      database.NewPostgresActivityRepository(conn),
		conn:      conn,
		transport: transport,
	}, nil
}

// WebSource is a single cycle's handle: it scrapes over its own HTTP transport
// and stores through its own database connection.
type WebSource struct {
	scraper   activityScraper
	repo      activity.Repository
	conn      *sql.Conn
	transport *http.Transport

	closeOnce sync.Once
	closeErr  error
}

func (s *WebSource) Fetch(ctx context.Context) ([]activity.Activity, error) {
	return s.scraper.ScrapeActivities(ctx)
}

func (s *WebSource) Persist(ctx context.Context, activities []activity.Activity) error {
	return s.repo.SaveActivities(ctx, activities)
}

// Close drops idle HTTP connections and hands the database connection back
// to the pool. Calls after the first are no-ops.
func (s *WebSource) Close() error {
	s.closeOnce.Do(func() {
		if s.transport != nil {
			s.transport.CloseIdleConnections()
		}
		if s.conn != nil {
			s.closeErr = s.conn.Close()
		}
	})
	return s.closeErr
}
