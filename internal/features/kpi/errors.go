package kpi

import (
	"errors"
	"fmt"
)

var (
	ErrKPINotFound      = errors.New("kpi not found")
	ErrNotConfigured    = errors.New("time range not set")
	ErrInvalidTimeRange = errors.New("from must not be after to")
	ErrLoaderBusy       = errors.New("loader is already retrieving data")
	ErrLoaderFailed     = errors.New("loader failed, create a new one")
)

// QueryExecutionError is any search failure other than an unreachable
// cluster. It carries the rendered query for diagnosis.
type QueryExecutionError struct {
	KPIID string
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("failed executing query for KPI %s: %v\nQuery: %s", e.KPIID, e.Err, e.Query)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// ConfigurationError means the KPI definition itself is wrong.
type ConfigurationError struct {
	KPIID  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.KPIID == "" {
		return "invalid KPI configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid KPI configuration for %s: %s", e.KPIID, e.Reason)
}

// ConversionError is a response value that cannot be read as the declared type.
type ConversionError struct {
	Value  any
	Target string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot convert %v (%T) to %s: %v", e.Value, e.Value, e.Target, e.Err)
	}
	return fmt.Sprintf("cannot convert %v (%T) to %s", e.Value, e.Value, e.Target)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// UnsupportedAggregationError is an aggregation kind the loader cannot read.
type UnsupportedAggregationError struct {
	Name string
	Type string
}

func (e *UnsupportedAggregationError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("aggregation type not supported: %s", e.Name)
	}
	return fmt.Sprintf("aggregation type not supported: %s (%s)", e.Name, e.Type)
}
