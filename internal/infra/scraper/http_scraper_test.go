package scraper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"activity_scraper/internal/domain/acquisition"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newScraper(client *http.Client, urls ...string) *HTTPScraper {
	return NewHTTPScraper(client, rate.NewLimiter(rate.Inf, 1), Options{
		URLs:      urls,
		ItemsPath: "data.activities",
		UserAgent: "activity-scraper-test",
	}, discardLogger())
}

func TestScrapeActivities_CombinesPages(t *testing.T) {
	pages := map[string]string{
		"/page/1": `{"data":{"activities":[
			{"id": 1, "name": "Bouldering", "category": "sport", "subCategory": "climbing", "location": {"lat": 52.37, "lng": 4.89}, "url": "https://source.test/1"},
			{"id": "2", "title": "Rijksmuseum", "topLevelCategory": "CULTURE", "subLevelCategory": "museum", "latitude": 52.36, "longitude": 4.88},
			{"name": "No id"}
		]}}`,
		"/page/2": `{"data":{"activities":[
			{"id": "2", "name": "Rijksmuseum (updated)", "category": "culture"},
			{"id": "3", "name": "Canal tour", "description": " Boat trip "}
		]}}`,
	}
	var (
		mu         sync.Mutex
		userAgents []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		userAgents = append(userAgents, r.UserAgent())
		mu.Unlock()
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	s := newScraper(srv.Client(), srv.URL+"/page/1", srv.URL+"/page/2")
	activities, err := s.ScrapeActivities(context.Background())
	require.NoError(t, err)

	require.Len(t, activities, 3)
	assert.Equal(t, "1", activities[0].ExternalID)
	assert.Equal(t, "SPORT", activities[0].TopLevelCategory)
	assert.Equal(t, "climbing", activities[0].SubLevelCategory)
	assert.InDelta(t, 52.37, activities[0].Latitude, 1e-9)
	assert.InDelta(t, 4.89, activities[0].Longitude, 1e-9)

	assert.Equal(t, "2", activities[1].ExternalID)
	assert.Equal(t, "Rijksmuseum (updated)", activities[1].Name, "later pages win")

	assert.Equal(t, "3", activities[2].ExternalID)
	assert.Equal(t, "Boat trip", activities[2].Description)
	assert.False(t, activities[2].ScrapedAt.IsZero())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"activity-scraper-test", "activity-scraper-test"}, userAgents)
}

func TestScrapeActivities_Non2xxIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newScraper(srv.Client(), srv.URL+"/activities").ScrapeActivities(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, acquisition.ErrTransport))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, acquisition.KindTransport, acquisition.KindOf(err))
}

func TestScrapeActivities_ConnectionRefusedIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/activities"
	client := srv.Client()
	srv.Close()

	_, err := newScraper(client, url).ScrapeActivities(context.Background())

	require.Error(t, err)
	assert.Equal(t, acquisition.KindTransport, acquisition.KindOf(err))
}

func TestScrapeActivities_ClientTimeoutIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := srv.Client()
	client.Timeout = 20 * time.Millisecond

	_, err := newScraper(client, srv.URL+"/slow").ScrapeActivities(context.Background())

	require.Error(t, err)
	assert.Equal(t, acquisition.KindTimeout, acquisition.KindOf(err))
}

func TestScrapeActivities_BadPayloadIsUnexpected(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"html instead of json", "<html>blocked</html>", ErrInvalidPayload},
		{"missing items path", `{"data":{"items":[]}}`, ErrItemsNotFound},
		{"items not an array", `{"data":{"activities":{"id":1}}}`, ErrItemsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newScraper(srv.Client(), srv.URL).ScrapeActivities(context.Background())

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			assert.Equal(t, acquisition.KindUnexpected, acquisition.KindOf(err))
		})
	}
}

func TestScrapeActivities_RateLimitBeyondDeadlineIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"activities":[]}}`)
	}))
	defer srv.Close()

	// One request per minute: the second page cannot be fetched before the deadline.
	s := NewHTTPScraper(srv.Client(), rate.NewLimiter(rate.Every(time.Minute), 1), Options{
		URLs:      []string{srv.URL + "/1", srv.URL + "/2"},
		ItemsPath: "data.activities",
	}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := s.ScrapeActivities(ctx)

	require.Error(t, err)
	assert.Equal(t, acquisition.KindTimeout, acquisition.KindOf(err))
}

func TestScrapeActivities_OversizedBodyIsRejected(t *testing.T) {
	body := `{"data":{"activities":[{"id":1,"name":"Bouldering"}]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	s := newScraper(srv.Client(), srv.URL)

	s.maxBody = int64(len(body))
	got, err := s.ScrapeActivities(context.Background())
	require.NoError(t, err, "a body of exactly the limit is accepted")
	assert.Len(t, got, 1)

	s.maxBody = int64(len(body) - 1)
	_, err = s.ScrapeActivities(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
	assert.False(t, errors.Is(err, ErrInvalidPayload))
	assert.Equal(t, acquisition.KindUnexpected, acquisition.KindOf(err))
}
