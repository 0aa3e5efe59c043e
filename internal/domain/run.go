package domain

import (
	"context"
	"time"
)

// RunRecord is the ledger entry written for every ingestion run.
type RunRecord struct {
	ID         string
	Source     Source
	Params     string
	StartedAt  time.Time
	FinishedAt time.Time
	Tally      Tally
	Error      string
}

// RunRecorder persists run ledger entries.
type RunRecorder interface {
	RecordRun(ctx context.Context, r RunRecord) error
}
