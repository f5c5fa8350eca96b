/*
Copyright 2024 Settld Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package settld

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/settld-io/settld/database"
	"github.com/settld-io/settld/internal/notification"
	"github.com/settld-io/settld/model"
)

// ErrInvalidCycle is fatal: the candidate window cannot be derived from an
// unparsable cycle label.
var ErrInvalidCycle = errors.New("cycle must be a YYYY-MM-DD business date")

const cycleLayout = "2006-01-02"

var tracer trace.Tracer = otel.Tracer("settld.reconciliation")

// storageRetries bounds the backoff on the two storage round-trips. Both are
// single round-trips and retry independently of the in-memory matching.
const storageRetries = 3

// Settld is the reconciliation service. The datasource is injected; nothing
// here reaches into ambient global state.
type Settld struct {
	datasource database.IDataSource
}

// NewSettld initializes the reconciliation service with the provided
// datasource.
func NewSettld(db database.IDataSource) *Settld {
	return &Settld{datasource: db}
}

// ReconciliationRequest carries one run's inputs. The caller is already
// authenticated and tenant-scoped; ActorID exists for audit attribution only
// and never influences matching. DateWindowDays is a pointer because an
// explicit zero (same-day-only matching) is a valid request distinct from
// unset.
type ReconciliationRequest struct {
	File             []byte
	Provider         string
	Cycle            string
	AmountTolerance  int64
	DateWindowDays   *int
	Currency         string
	TenantID         string
	ActorID          string
	MatchThreshold   float64
	PartialThreshold float64
	DryRun           bool
}

// ReconcileSettlementFile runs one settlement file against the tenant's
// ledger: parse, load candidates, match, aggregate, persist. A run either
// completes and persists a Settlement, or fails before any persistence
// occurs. Row-level problems degrade to discrepancy entries instead of
// aborting; only conditions that make the whole run meaningless are fatal.
func (s *Settld) ReconcileSettlementFile(ctx context.Context, req ReconciliationRequest) (*model.ReconciliationResult, error) {
	ctx, span := tracer.Start(ctx, "ReconcileSettlementFile")
	defer span.End()
	startedAt := time.Now()

	if req.TenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	cycleDate, err := time.Parse(cycleLayout, req.Cycle)
	if err != nil {
		return nil, ErrInvalidCycle
	}

	cfg := DefaultMatchConfig()
	cfg.AmountTolerance = req.AmountTolerance
	if req.DateWindowDays != nil {
		if *req.DateWindowDays < 0 {
			return nil, errors.New("date window days must be non-negative")
		}
		cfg.DateWindowDays = *req.DateWindowDays
	}
	if req.MatchThreshold > 0 {
		cfg.MatchThreshold = req.MatchThreshold
	}
	if req.PartialThreshold > 0 {
		cfg.PartialThreshold = req.PartialThreshold
	}
	if cfg.PartialThreshold > cfg.MatchThreshold {
		return nil, errors.New("partial threshold cannot exceed match threshold")
	}

	records, rowErrors, err := ParseSettlementFile(req.File, ParseOptions{DefaultCurrency: req.Currency})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		// Rows existed but none parsed; an empty settlement is not a
		// meaningful record.
		return nil, ErrNoDataRows
	}

	candidates, err := s.loadCandidates(ctx, req.TenantID, cycleDate, cfg.DateWindowDays)
	if err != nil {
		return nil, errors.Wrap(err, "loading payment candidates")
	}

	index := NewCandidateIndex(candidates, cfg.AmountTolerance)
	outcomes := runMatching(ctx, records, rowErrors, index, cfg)

	settlement, result := aggregate(req.TenantID, resolveProvider(req.Provider), req.Cycle, outcomes, records)

	if req.DryRun {
		result.SettlementID = ""
		logrus.Infof("dry run completed for tenant %s: %d matched, %d partial, %d unmatched",
			req.TenantID, result.Matched, result.PartialMatches, result.Unmatched)
		s.postRunActions(ctx, buildAudit(req, "", result, startedAt))
		return &result, nil
	}

	if err := s.persistSettlement(ctx, &settlement, outcomes); err != nil {
		// The run as a whole fails; no partial result is authoritative.
		return nil, errors.Wrap(err, "persisting settlement")
	}

	logrus.Infof("settlement %s recorded for tenant %s: %d matched, %d partial, %d unmatched",
		settlement.SettlementID, req.TenantID, result.Matched, result.PartialMatches, result.Unmatched)

	s.postRunActions(ctx, buildAudit(req, settlement.SettlementID, result, startedAt))
	return &result, nil
}

// GetSettlement retrieves a persisted settlement summary.
func (s *Settld) GetSettlement(ctx context.Context, settlementID string) (*model.Settlement, error) {
	return s.datasource.GetSettlement(ctx, settlementID)
}

// GetSettlements retrieves the most recent settlements for a tenant.
func (s *Settld) GetSettlements(ctx context.Context, tenantID string, limit int) ([]*model.Settlement, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.datasource.GetSettlementsByTenant(ctx, tenantID, limit)
}

// GetMatchOutcomes retrieves the stored per-row outcomes of a settlement.
func (s *Settld) GetMatchOutcomes(ctx context.Context, settlementID string) ([]model.MatchOutcome, error) {
	return s.datasource.GetMatchOutcomes(ctx, settlementID)
}

// loadCandidates pulls the tenant's eligible payments for cycle ± window in
// one retried round-trip.
func (s *Settld) loadCandidates(ctx context.Context, tenantID string, cycleDate time.Time, windowDays int) ([]*model.PaymentCandidate, error) {
	from := cycleDate.AddDate(0, 0, -windowDays)
	to := cycleDate.AddDate(0, 0, windowDays+1).Add(-time.Second)

	var candidates []*model.PaymentCandidate
	operation := func() error {
		var err error
		candidates, err = s.datasource.GetPaymentCandidates(ctx, tenantID, from, to)
		return err
	}
	err := backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), storageRetries))
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// persistSettlement writes the settlement and its outcomes in one retried
// transaction.
func (s *Settld) persistSettlement(ctx context.Context, settlement *model.Settlement, outcomes []model.MatchOutcome) error {
	operation := func() error {
		return s.datasource.RecordSettlement(ctx, settlement, outcomes)
	}
	return backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), storageRetries))
}

// postRunActions hands the audit record to the notification emitter in the
// background. Delivery is an external concern; its failure never fails the
// run.
func (s *Settld) postRunActions(_ context.Context, audit model.AuditRecord) {
	go func() {
		if err := notification.AuditWebhook(audit); err != nil {
			notification.NotifyError(err)
		}
	}()
}

func buildAudit(req ReconciliationRequest, settlementID string, result model.ReconciliationResult, startedAt time.Time) model.AuditRecord {
	return model.AuditRecord{
		ActorID:      req.ActorID,
		TenantID:     req.TenantID,
		Provider:     resolveProvider(req.Provider),
		SettlementID: settlementID,
		Matched:      result.Matched,
		Unmatched:    result.Unmatched,
		Partial:      result.PartialMatches,
		DryRun:       req.DryRun,
		StartedAt:    startedAt,
		CompletedAt:  ptr.Time(time.Now()),
	}
}

// resolveProvider normalizes the upload layer's provider hint. "auto" means
// the uploader could not tell; the settlement still needs a stable label.
func resolveProvider(provider string) string {
	p := strings.TrimSpace(strings.ToLower(provider))
	if p == "" || p == "auto" {
		return "unknown"
	}
	return p
}

// IsFatalInputError reports whether err belongs to the fatal input taxonomy:
// conditions under which no Settlement is created and the caller gets a
// single error instead of a partial result.
func IsFatalInputError(err error) bool {
	return errors.Is(err, ErrNotText) ||
		errors.Is(err, ErrNoAmountColumn) ||
		errors.Is(err, ErrNoDataRows) ||
		errors.Is(err, ErrInvalidCycle)
}
