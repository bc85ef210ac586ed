// Package worker runs the collector's periodic background tasks: scheduled
// collection, run-history retention and DNS cache refresh.
package worker

import "context"

// Worker is a named task that runs until its context ends. A non-nil
// error from Run stops every other worker in the same Runner.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}
