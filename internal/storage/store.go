package storage

import (
	"context"

	"fieldnet/internal/model"
)

// Store persists run history: one record per net run plus the logged
// data rows produced while it executed.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	AppendRows(ctx context.Context, runID string, rows []model.Row) error
	GetRows(ctx context.Context, runID string) ([]model.Row, bool, error)
}
