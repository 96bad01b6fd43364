package database

import "time"

// PosterRecord is the persisted CachedImage of one series
type PosterRecord struct {
	SeriesID           int64     `json:"seriesId" db:"series_id"`
	CacheKey           string    `json:"key" db:"cache_key"`
	Placeholder        *string   `json:"placeholder,omitempty" db:"placeholder"`
	PlaceholderVersion int       `json:"placeholderVersion" db:"placeholder_version"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}
