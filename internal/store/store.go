package store

import (
	"context"
	"errors"

	"github.com/seantiz/infernum/internal/model"
)

// ErrInvalidTransition is returned when a record status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// RecordStats holds aggregate inference statistics.
type RecordStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByModel  map[string]int `json:"count_by_model"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for inference records.
type Store interface {
	CreateRecord(ctx context.Context, r *model.Record) error
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	ListRecords(ctx context.Context, limit, offset int) ([]*model.Record, int, error)
	FinishRecord(ctx context.Context, r *model.Record) error
	AbandonPending(ctx context.Context) (int, error)
	GetRecordStats(ctx context.Context) (*RecordStats, error)
	Close() error
}
