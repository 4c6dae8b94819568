// Package scheduler runs the periodic background jobs of the dispatcher:
// recovery sweeps, instance sync and state polling.
package scheduler

import "errors"

var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)
