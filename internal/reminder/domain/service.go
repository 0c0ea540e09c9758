package domain

import "context"

type Service interface {
	// Sweep sends every due reminder once per rung cap. Row failures are
	// logged and counted, never returned.
	Sweep(ctx context.Context) (SweepResult, error)
}
