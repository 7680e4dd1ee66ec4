// Package sync implements the reconciliation engine between the Salla
// catalog and the local ERP records: pure entity mappers, a persistent
// cross-reference store and per-domain sync managers with link-or-create
// matching and last-write-wins conflict resolution.
package sync

import (
	"context"
	"errors"
	"fmt"
)

// Domain identifies a sync vertical.
type Domain string

// Sync domains.
const (
	DomainProducts   Domain = "products"
	DomainCategories Domain = "categories"
	DomainOrders     Domain = "orders"
	DomainPrices     Domain = "prices"
	DomainCustomers  Domain = "customers"
)

// ParseDomain validates a domain string.
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainProducts, DomainCategories, DomainOrders, DomainPrices, DomainCustomers:
		return Domain(s), nil
	default:
		return "", fmt.Errorf("sync: unknown domain %q", s)
	}
}

// State is the phase of a sync run.
type State string

// Run states.
const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateMapping   State = "mapping"
	StateUpserting State = "upserting"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Counts aggregates the record-level outcomes of a run.
type Counts struct {
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Linked        int `json:"linked"`
	UpdatedPrices int `json:"updated_prices"`
	Failed        int `json:"failed"`
}

// Result is the structured outcome every operation returns to its caller.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Counts
	Errors []string `json:"errors,omitempty"`
}

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultMaxFailures is the hard-error threshold: a run with this many
// per-record failures is marked failed even though processing continued.
const DefaultMaxFailures = 50

// run tracks the state machine and counters of one sync pass. Records fail
// individually without aborting the pass; the pass fails once the failure
// count reaches the threshold or a job-level error occurs.
type run struct {
	state       State
	counts      Counts
	errs        []string
	maxFailures int
}

func newRun(maxFailures int) *run {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &run{state: StateIdle, maxFailures: maxFailures}
}

func (r *run) enter(s State) { r.state = s }

// recordFailure notes a per-record error and reports whether the run must
// abort because the threshold was crossed.
func (r *run) recordFailure(err error) error {
	r.counts.Failed++
	if len(r.errs) < r.maxFailures {
		r.errs = append(r.errs, err.Error())
	}
	if r.counts.Failed >= r.maxFailures {
		return ErrTooManyFailures
	}
	return nil
}

// checkpoint is called between pages; it honours cancellation without
// aborting mid-page.
func (r *run) checkpoint(ctx context.Context) error {
	return ctx.Err()
}

func (r *run) success(message string) Result {
	r.enter(StateDone)
	return Result{Status: StatusSuccess, Message: message, Counts: r.counts, Errors: r.errs}
}

func (r *run) failure(err error) Result {
	r.enter(StateFailed)
	message := "sync failed"
	if err != nil {
		message = err.Error()
	}
	return Result{Status: StatusError, Message: message, Counts: r.counts, Errors: r.errs}
}

// finish maps a run-level error (or its absence) onto the final Result.
func (r *run) finish(err error, okMessage string) Result {
	if err == nil {
		return r.success(okMessage)
	}
	if errors.Is(err, context.Canceled) {
		return r.failure(errors.New("sync cancelled"))
	}
	return r.failure(err)
}
