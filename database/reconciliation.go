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
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/settld-io/settld/internal/apierror"
	"github.com/settld-io/settld/model"
)

// RecordSettlement persists one settlement summary and its per-row match
// outcomes in a single transaction. Either everything lands or nothing does;
// a failed write after successful matching must not report success.
func (d Datasource) RecordSettlement(ctx context.Context, settlement *model.Settlement, outcomes []model.MatchOutcome) error {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "Saving settlement to db")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to begin settlement transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settlements(
			settlement_id, tenant_id, provider, cycle, total_fees, net_amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		settlement.SettlementID, settlement.TenantID, settlement.Provider, settlement.Cycle,
		settlement.TotalFees, settlement.NetAmount, settlement.CreatedAt,
	)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to insert settlement", err)
	}

	for _, outcome := range outcomes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO match_outcomes(
				settlement_id, row_index, payment_id, score, classification, reasons
			) VALUES ($1, $2, $3, $4, $5, $6)`,
			settlement.SettlementID, outcome.Row, outcome.PaymentID, outcome.Score,
			outcome.Classification, pq.Array(outcome.Reasons),
		)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "failed to insert match outcome", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to commit settlement", err)
	}
	return nil
}

// GetSettlement retrieves a settlement summary by its ID.
func (d Datasource) GetSettlement(ctx context.Context, settlementID string) (*model.Settlement, error) {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "Fetching settlement from db")
	defer span.End()

	settlement := &model.Settlement{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, settlement_id, tenant_id, provider, cycle, total_fees, net_amount, created_at
		FROM settlements
		WHERE settlement_id = $1
	`, settlementID).Scan(
		&settlement.ID, &settlement.SettlementID, &settlement.TenantID, &settlement.Provider,
		&settlement.Cycle, &settlement.TotalFees, &settlement.NetAmount, &settlement.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "settlement not found", settlementID)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch settlement", err)
	}
	return settlement, nil
}

// GetSettlementsByTenant retrieves the most recent settlements for a tenant.
func (d Datasource) GetSettlementsByTenant(ctx context.Context, tenantID string, limit int) ([]*model.Settlement, error) {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "Fetching settlements by tenant")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, settlement_id, tenant_id, provider, cycle, total_fees, net_amount, created_at
		FROM settlements
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch settlements", err)
	}
	defer rows.Close()

	var settlements []*model.Settlement
	for rows.Next() {
		settlement := &model.Settlement{}
		err = rows.Scan(
			&settlement.ID, &settlement.SettlementID, &settlement.TenantID, &settlement.Provider,
			&settlement.Cycle, &settlement.TotalFees, &settlement.NetAmount, &settlement.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan settlement", err)
		}
		settlements = append(settlements, settlement)
	}
	return settlements, nil
}

// GetMatchOutcomes retrieves the stored per-row outcomes of a settlement,
// ordered by row index. Together with the settlement summary these replay
// the run's ReconciliationResult.
func (d Datasource) GetMatchOutcomes(ctx context.Context, settlementID string) ([]model.MatchOutcome, error) {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "Fetching match outcomes from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT row_index, payment_id, score, classification, reasons
		FROM match_outcomes
		WHERE settlement_id = $1
		ORDER BY row_index
	`, settlementID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch match outcomes", err)
	}
	defer rows.Close()

	var outcomes []model.MatchOutcome
	for rows.Next() {
		var outcome model.MatchOutcome
		err = rows.Scan(
			&outcome.Row, &outcome.PaymentID, &outcome.Score,
			&outcome.Classification, pq.Array(&outcome.Reasons),
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan match outcome", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// GetPaymentCandidates loads the tenant's payments eligible for matching
// within the run's time window. Only settled or paid ledger entries are
// candidates; the ledger write path is not this service's concern.
func (d Datasource) GetPaymentCandidates(ctx context.Context, tenantID string, from, to time.Time) ([]*model.PaymentCandidate, error) {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "Fetching payment candidates from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT payment_id, amount, currency, provider_reference, paid_at, status
		FROM payments
		WHERE tenant_id = $1
		  AND status = ANY($2)
		  AND paid_at BETWEEN $3 AND $4
		ORDER BY paid_at, id
	`, tenantID, pq.Array([]string{model.PaymentStatusSettled, model.PaymentStatusPaid}), from, to)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch payment candidates", err)
	}
	defer rows.Close()

	var candidates []*model.PaymentCandidate
	for rows.Next() {
		candidate := &model.PaymentCandidate{}
		err = rows.Scan(
			&candidate.PaymentID, &candidate.Amount, &candidate.Currency,
			&candidate.ProviderReference, &candidate.PaidAt, &candidate.Status,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan payment candidate", err)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
