// internal/domain/activity/activity.go
package activity

import "time"

// Activity is a single scraped leisure activity.
type Activity struct {
	ExternalID       string // Identifier assigned by the remote source
	Name             string
	Description      string
	TopLevelCategory string // e.g. SPORT, CULTURE
	SubLevelCategory string // e.g. climbing, museum
	Latitude         float64
	Longitude        float64
	URL              string
	ScrapedAt        time.Time
}
