package models

import (
	"time"
)

// Log is one entry of the "logs" collection written by the database sink.
type Log struct {
	AppID        string         `bson:"app_id" json:"app_id"`
	Message      string         `bson:"message" json:"message"`
	LogLevelId   int            `bson:"log_level_id" json:"log_level_id"`
	Caller       string         `bson:"caller,omitempty" json:"caller,omitempty"`
	KPIID        string         `bson:"kpi_id,omitempty" json:"kpi_id,omitempty"`
	LoadID       string         `bson:"load_id,omitempty" json:"load_id,omitempty"`
	Fields       map[string]any `bson:"fields,omitempty" json:"fields,omitempty"`
	CreatedOnUtc time.Time      `bson:"created_on_utc" json:"created_on_utc"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
}
