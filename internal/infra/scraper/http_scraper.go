// internal/infra/scraper/http_scraper.go
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"activity_scraper/internal/domain/acquisition"
	"activity_scraper/internal/domain/activity"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 32 << 20

var (
	ErrInvalidPayload = errors.New("response body is not valid JSON")
	ErrItemsNotFound  = errors.New("activity list not found in response")
	ErrBodyTooLarge   = errors.New("response body too large")
)

// StatusError is returned for non-2xx responses. It is marked as a transport failure.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status %q from %s", e.Status, e.URL)
}

// Options configures which pages are scraped and how records are located in them.
type Options struct {
	URLs      []string
	ItemsPath string // gjson path to the array of records, e.g. "data.activities"
	UserAgent string
}

// HTTPScraper downloads JSON activity listings from a fixed set of pages.
type HTTPScraper struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	maxBody int64
	logger  *logrus.Entry
}

func NewHTTPScraper(client *http.Client, limiter *rate.Limiter, opts Options, logger *logrus.Entry) *HTTPScraper {
	return &HTTPScraper{
		client:  client,
		limiter: limiter,
		opts:    opts,
		maxBody: maxBodyBytes,
		logger:  logger,
	}
}

// ScrapeActivities fetches every configured page in order and returns the
// combined activities. A record id seen on several pages keeps its last version.
func (s *HTTPScraper) ScrapeActivities(ctx context.Context) ([]activity.Activity, error) {
	scrapedAt := time.Now().UTC()
	index := make(map[string]int)
	var activities []activity.Activity

	for _, pageURL := range s.opts.URLs {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// The wait would outlast the context deadline.
			return nil, errors.Mark(err, acquisition.ErrTimeout)
		}

		body, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		page, skipped, err := s.parsePage(body, scrapedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", pageURL)
		}
		logCtx := s.logger.WithFields(logrus.Fields{"url": pageURL, "records": len(page)})
		if skipped > 0 {
			logCtx.WithField("skipped", skipped).Warn("Skipped records without id or name")
		}
		logCtx.Debug("Scraped page")

		for _, a := range page {
			if i, seen := index[a.ExternalID]; seen {
				activities[i] = a
				continue
			}
			index[a.ExternalID] = len(activities)
			activities = append(activities, a)
		}
	}

	return activities, nil
}

func (s *HTTPScraper) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", pageURL)
	}
	req.Header.Set("Accept", "application/json")
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, errors.Mark(&StatusError{URL: pageURL, StatusCode: resp.StatusCode, Status: resp.Status}, acquisition.ErrTransport)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > s.maxBody {
		return nil, errors.Wrapf(ErrBodyTooLarge, "%s exceeds %d bytes", pageURL, s.maxBody)
	}
	return body, nil
}

func (s *HTTPScraper) parsePage(body []byte, scrapedAt time.Time) ([]activity.Activity, int, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, ErrInvalidPayload
	}
	records := gjson.GetBytes(body, s.opts.ItemsPath)
	if !records.Exists() || !records.IsArray() {
		return nil, 0, errors.Wrapf(ErrItemsNotFound, "path %q", s.opts.ItemsPath)
	}

	var (
		out     []activity.Activity
		skipped int
	)
	records.ForEach(func(_, rec gjson.Result) bool {
		a, ok := parseActivity(rec, scrapedAt)
		if !ok {
			skipped++
			return true
		}
		out = append(out, a)
		return true
	})
	return out, skipped, nil
}

func parseActivity(rec gjson.Result, scrapedAt time.Time) (activity.Activity, bool) {
	a := activity.Activity{
		ExternalID:       strings.TrimSpace(firstOf(rec, "id", "externalId").String()),
		Name:             strings.TrimSpace(firstOf(rec, "name", "title").String()),
		Description:      strings.TrimSpace(rec.Get("description").String()),
		TopLevelCategory: strings.ToUpper(strings.TrimSpace(firstOf(rec, "topLevelCategory", "category").String())),
		SubLevelCategory: strings.TrimSpace(firstOf(rec, "subLevelCategory", "subCategory").String()),
		Latitude:         firstOf(rec, "latitude", "location.latitude", "location.lat").Float(),
		Longitude:        firstOf(rec, "longitude", "location.longitude", "location.lng").Float(),
		URL:              strings.TrimSpace(rec.Get("url").String()),
		ScrapedAt:        scrapedAt,
	}
	if a.ExternalID == "" || a.Name == "" {
		return activity.Activity{}, false
	}
	return a, true
}

func firstOf(rec gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := rec.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
