// Package probe gates startup on database readiness. It re-dials the
// configured PostgreSQL instance until a trivial query round-trips or the
// retry budget runs out.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psihotips/psihotips-ops/pkg/config"
	"github.com/psihotips/psihotips-ops/pkg/database"
	"github.com/psihotips/psihotips-ops/pkg/health"
	"github.com/psihotips/psihotips-ops/pkg/logger"
)

// ErrUnreachable marks a retry budget exhausted. Callers must treat it as
// fatal: there is no fallback once probing gives up.
var ErrUnreachable = errors.New("database unreachable")

// ConfigError reports configuration rejected before any connection attempt.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("database configuration invalid: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UnreachableError carries the last underlying connection error after the
// whole retry budget was spent.
type UnreachableError struct {
	Attempts int
	LastErr  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("database unreachable after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *UnreachableError) Unwrap() error { return e.LastErr }

func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

// DialFunc performs one readiness attempt: connect, round-trip a trivial
// query, disconnect.
type DialFunc func(ctx context.Context, target config.PostgresConfig) error

// Prober blocks until the database answers or the policy is exhausted.
type Prober struct {
	policy  config.ProbeConfig
	log     logger.Logger
	checker *health.Checker
	dial    DialFunc
}

// New creates a prober with the default pgx dialer.
func New(policy config.ProbeConfig, log logger.Logger) *Prober {
	return &Prober{
		policy:  policy,
		log:     log,
		checker: health.NewChecker(),
		dial:    dialPostgres,
	}
}

// Health exposes the per-attempt check results.
func (p *Prober) Health() *health.Checker {
	return p.checker
}

// WaitForReady probes the target once per policy interval until it answers.
// Invalid configuration fails immediately, before the first attempt, without
// consuming any retry budget. Exhausting the budget returns an
// *UnreachableError matching ErrUnreachable.
func (p *Prober) WaitForReady(ctx context.Context, target config.PostgresConfig) error {
	if err := target.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	if err := p.policy.Validate(); err != nil {
		return &ConfigError{Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		err := p.dial(ctx, target)
		p.checker.Record("postgres", err)
		if err == nil {
			p.log.Infof("Database %s:%d/%s is ready (attempt %d/%d)",
				target.Host, target.Port, target.Database, attempt, p.policy.MaxAttempts)
			return nil
		}

		lastErr = err
		p.log.Warnf("Database not ready (attempt %d/%d): %v", attempt, p.policy.MaxAttempts, err)

		if attempt < p.policy.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.policy.Interval):
			}
		}
	}

	return &UnreachableError{Attempts: p.policy.MaxAttempts, LastErr: lastErr}
}

// dialPostgres opens a fresh connection and round-trips SELECT 1. The
// connection is closed again: the gate's working session is opened once,
// after readiness is confirmed.
func dialPostgres(ctx context.Context, target config.PostgresConfig) error {
	db, err := database.Connect(ctx, target)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	var one int
	if err := db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return err
	}
	return nil
}
