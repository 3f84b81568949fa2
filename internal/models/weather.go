package models

import "time"

// Source values tag which path produced a stage response.
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)

// ValidationRecord is the catalog entry created the first time a zipcode validates.
// Records are never updated or deleted.
type ValidationRecord struct {
	Zipcode   string    `json:"zipcode"`
	IsValid   bool      `json:"isValid"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validation is the validator stage response.
type Validation struct {
	Zipcode string `json:"zipcode"`
	Valid   bool   `json:"valid"`
	Source  string `json:"source"`
}

// DataRecord is one weather observation for a zipcode. The store keeps every
// record ever fetched; the current value is the one with the latest Timestamp.
type DataRecord struct {
	Zipcode     string    `json:"zipcode"`
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	Description string    `json:"description"`
	WindSpeed   float64   `json:"windSpeed"`
	Humidity    int       `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
}

// FormattedResult is the formatter's view over the latest DataRecord.
type FormattedResult struct {
	Zipcode     string    `json:"zipcode"`
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	Description string    `json:"description"`
	WindSpeed   float64   `json:"windSpeed"`
	Humidity    int       `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
}

// NewFormattedResult projects a DataRecord into a FormattedResult tagged with source.
func NewFormattedResult(rec DataRecord, source string) FormattedResult {
	return FormattedResult{
		Zipcode:     rec.Zipcode,
		City:        rec.City,
		Temperature: rec.Temperature,
		Description: rec.Description,
		WindSpeed:   rec.WindSpeed,
		Humidity:    rec.Humidity,
		Timestamp:   rec.Timestamp,
		Source:      source,
	}
}

// History is the formatter's history response, newest first.
type History struct {
	Zipcode string       `json:"zipcode"`
	Count   int          `json:"count"`
	History []DataRecord `json:"history"`
}
