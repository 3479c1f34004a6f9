// Package dispatch fans inbound webhook events out to matching tenant
// pipelines.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	xerrors "github.com/webhook-indexer/internal/errors"
	"github.com/webhook-indexer/internal/logging"
	"github.com/webhook-indexer/internal/models"
	"github.com/webhook-indexer/internal/retry"
	"github.com/webhook-indexer/internal/storage"
	"github.com/webhook-indexer/internal/types"
)

// CreditMeter charges one credit per matched rule.
type CreditMeter interface {
	Charge(ctx context.Context, userID, databaseID string) (*models.User, error)
}

// SnapshotLoader supplies the configuration snapshot a dispatch works from.
type SnapshotLoader interface {
	Load(ctx context.Context) (*storage.Snapshot, error)
}

// ClientPool supplies tenant store clients.
type ClientPool interface {
	Acquire(ctx context.Context, cfg *models.DatabaseConfig) (*storage.TenantClient, error)
}

// RuleSuspender removes an exhausted rule from the upstream watch list.
type RuleSuspender interface {
	Suspend(ctx context.Context, rule *models.Setting, userID string) error
}

// EventIngestor persists one matched event into a tenant store.
type EventIngestor interface {
	Ingest(ctx context.Context, client *storage.TenantClient, kind types.EventKind, event *models.WebhookEvent) error
}

// DispatcherConfig holds the dependencies and tuning for a dispatcher
type DispatcherConfig struct {
	Snapshots     SnapshotLoader
	Meter         CreditMeter
	Pool          ClientPool
	Suspender     RuleSuspender
	Ingestor      EventIngestor
	LowCreditMark int64         // Post-charge balance at or below which suspension fires (default 100)
	UnitTimeout   time.Duration // Per-unit bound on external calls (default 15s)
	Retry         *retry.Config // Bounded retry for transient failures (default 5 x 2s)
}

// Dispatcher matches an inbound event's touched accounts against all
// monitoring rules and runs each match as an independent concurrent unit of
// work. Units never affect each other: one unit's failure is recorded in the
// summary and nothing else.
type Dispatcher struct {
	snapshots     SnapshotLoader
	meter         CreditMeter
	pool          ClientPool
	suspender     RuleSuspender
	ingestor      EventIngestor
	lowCreditMark int64
	unitTimeout   time.Duration
	retryConfig   *retry.Config
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(cfg *DispatcherConfig) (*Dispatcher, error) {
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("snapshot loader cannot be nil")
	}
	if cfg.Meter == nil {
		return nil, fmt.Errorf("credit meter cannot be nil")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("client pool cannot be nil")
	}
	if cfg.Suspender == nil {
		return nil, fmt.Errorf("suspender cannot be nil")
	}
	if cfg.Ingestor == nil {
		return nil, fmt.Errorf("ingestor cannot be nil")
	}

	lowCreditMark := cfg.LowCreditMark
	if lowCreditMark == 0 {
		lowCreditMark = 100
	}

	unitTimeout := cfg.UnitTimeout
	if unitTimeout == 0 {
		unitTimeout = 15 * time.Second
	}

	retryConfig := cfg.Retry
	if retryConfig == nil {
		retryConfig = retry.DefaultConfig()
	}

	return &Dispatcher{
		snapshots:     cfg.Snapshots,
		meter:         cfg.Meter,
		pool:          cfg.Pool,
		suspender:     cfg.Suspender,
		ingestor:      cfg.Ingestor,
		lowCreditMark: lowCreditMark,
		unitTimeout:   unitTimeout,
		retryConfig:   retryConfig,
	}, nil
}

// Dispatch fans the event out to every rule whose target address the event
// touches and waits for all units to finish. It always completes once the
// units do, regardless of individual outcomes; the caller acks the webhook
// before looking at the summary, if it looks at all.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.WebhookEvent) *Summary {
	logger := logging.FromContext(ctx)
	summary := &Summary{}

	accounts := event.TouchedAccounts()
	if len(accounts) == 0 {
		return summary
	}

	snapshot, err := d.snapshots.Load(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration snapshot, dropping event")
		return summary
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, setting := range snapshot.Settings {
		if _, ok := accounts[setting.TargetAddr]; !ok {
			continue
		}

		summary.Matched++
		wg.Add(1)

		go func(rule *models.Setting) {
			defer wg.Done()

			unitCtx, cancel := context.WithTimeout(ctx, d.unitTimeout)
			defer cancel()

			outcome := d.runUnit(unitCtx, snapshot, rule, event)
			if outcome.Err != nil {
				logger.WithError(outcome.Err).WithFields(map[string]interface{}{
					"settingId":  rule.ID,
					"databaseId": rule.DatabaseID,
					"status":     string(outcome.Status),
				}).Error("Unit of work did not complete cleanly")
			}

			mu.Lock()
			summary.Outcomes = append(summary.Outcomes, outcome)
			mu.Unlock()
		}(setting)
	}

	wg.Wait()

	return summary
}

// runUnit executes one rule's charge/suspend-or-ingest sequence. Steps run
// sequentially inside the unit; blocking calls are bounded by the unit
// context.
func (d *Dispatcher) runUnit(ctx context.Context, snapshot *storage.Snapshot, rule *models.Setting, event *models.WebhookEvent) Outcome {
	outcome := Outcome{
		SettingID:  rule.ID,
		UserID:     rule.UserID,
		DatabaseID: rule.DatabaseID,
		TargetAddr: rule.TargetAddr,
	}

	if _, ok := snapshot.UserByID(rule.UserID); !ok {
		outcome.Status = StatusSkipped
		outcome.Reason = "user not in snapshot"
		return outcome
	}

	user, err := d.meter.Charge(ctx, rule.UserID, rule.DatabaseID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// The owner vanished between snapshot and charge; unsubscribe
			// the orphaned address.
			return d.suspend(ctx, rule, "", outcome)
		}
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	if user.Credits <= d.lowCreditMark {
		return d.suspend(ctx, rule, user.ID, outcome)
	}

	cfg, ok := snapshot.DatabaseByID(rule.DatabaseID)
	if !ok {
		outcome.Status = StatusSkipped
		outcome.Reason = "database config not in snapshot"
		return outcome
	}

	var client *storage.TenantClient
	result := retry.Do(ctx, d.retryConfig, func(ctx context.Context, attempt int) error {
		var acquireErr error
		client, acquireErr = d.pool.Acquire(ctx, cfg)
		return acquireErr
	})
	if result.Status != retry.StatusOK {
		outcome.Status = StatusFailed
		outcome.Reason = "tenant store unavailable"
		outcome.Err = result.LastError
		return outcome
	}

	if err := d.ingestor.Ingest(ctx, client, event.Type, event); err != nil {
		if xerrors.IsData(err) {
			outcome.Status = StatusSkipped
			outcome.Reason = "invalid payload"
			return outcome
		}
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	outcome.Status = StatusIngested
	return outcome
}

func (d *Dispatcher) suspend(ctx context.Context, rule *models.Setting, userID string, outcome Outcome) Outcome {
	result := retry.Do(ctx, d.retryConfig, func(ctx context.Context, attempt int) error {
		return d.suspender.Suspend(ctx, rule, userID)
	})
	if result.Status != retry.StatusOK {
		// Local state is unchanged; the guard re-fires on the next event.
		outcome.Status = StatusFailed
		outcome.Reason = "suspension not committed"
		outcome.Err = result.LastError
		return outcome
	}

	outcome.Status = StatusSuspended
	return outcome
}
