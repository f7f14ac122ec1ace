package store

import (
	"context"

	"github.com/me/qhaul/pkg/model"
)

// Store defines the persistence layer for jobs.
type Store interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error)
	UpdateJob(ctx context.Context, job *model.Job) error
	DeleteJob(ctx context.Context, id string) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
