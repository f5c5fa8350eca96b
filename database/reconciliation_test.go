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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/settld-io/settld/internal/apierror"
	"github.com/settld-io/settld/model"
)

func newMockDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error creating mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return Datasource{Conn: db}, mock
}

func TestRecordSettlement(t *testing.T) {
	datasource, mock := newMockDatasource(t)

	paymentID := "pay_1"
	settlement := &model.Settlement{
		SettlementID: "stl_1",
		TenantID:     "tenant_1",
		Provider:     "stripe",
		Cycle:        "2026-08-28",
		TotalFees:    400,
		NetAmount:    16600,
		CreatedAt:    time.Now(),
	}
	outcomes := []model.MatchOutcome{
		{Row: 1, PaymentID: &paymentID, Score: 100, Classification: model.ClassificationMatched},
		{Row: 2, Classification: model.ClassificationUnmatched, Reasons: []string{model.ReasonNoCandidate}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlements")).
		WithArgs(settlement.SettlementID, settlement.TenantID, settlement.Provider, settlement.Cycle,
			settlement.TotalFees, settlement.NetAmount, settlement.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO match_outcomes")).
		WithArgs(settlement.SettlementID, 1, paymentID, 100.0, model.ClassificationMatched, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO match_outcomes")).
		WithArgs(settlement.SettlementID, 2, nil, 0.0, model.ClassificationUnmatched, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := datasource.RecordSettlement(context.Background(), settlement, outcomes)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSettlementRollsBackOnFailure(t *testing.T) {
	datasource, mock := newMockDatasource(t)

	settlement := &model.Settlement{SettlementID: "stl_1", CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlements")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := datasource.RecordSettlement(context.Background(), settlement, nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSettlement(t *testing.T) {
	datasource, mock := newMockDatasource(t)

	createdAt := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, settlement_id, tenant_id, provider, cycle, total_fees, net_amount, created_at")).
		WithArgs("stl_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "settlement_id", "tenant_id", "provider", "cycle", "total_fees", "net_amount", "created_at",
		}).AddRow(1, "stl_1", "tenant_1", "stripe", "2026-08-28", 400, 16600, createdAt))

	settlement, err := datasource.GetSettlement(context.Background(), "stl_1")
	assert.NoError(t, err)
	assert.Equal(t, "stl_1", settlement.SettlementID)
	assert.Equal(t, int64(16600), settlement.NetAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSettlementNotFound(t *testing.T) {
	datasource, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, settlement_id")).
		WithArgs("stl_missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "settlement_id", "tenant_id", "provider", "cycle", "total_fees", "net_amount", "created_at",
		}))

	_, err := datasource.GetSettlement(context.Background(), "stl_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestGetSettlementsByTenant(t *testing.T) {
	datasource, mock := newMockDatasource(t)

	createdAt := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM settlements")).
		WithArgs("tenant_1", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "settlement_id", "tenant_id", "provider", "cycle", "total_fees", "net_amount", "created_at",
		}).
			AddRow(2, "stl_2", "tenant_1", "stripe", "2026-08-29", 0, 5000, createdAt).
			AddRow(1, "stl_1", "tenant_1", "stripe", "2026-08-28", 400, 16600, createdAt))

	settlements, err := datasource.GetSettlementsByTenant(context.Background(), "tenant_1", 50)
	assert.NoError(t, err)
	assert.Len(t, settlements, 2)
	assert.Equal(t, "stl_2", settlements[0].SettlementID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMatchOutcomes(t *testing.T) {
	datasource, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM match_outcomes")).
		WithArgs("stl_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"row_index", "payment_id", "score", "classification", "reasons",
		}).
			AddRow(1, "pay_1", 100.0, model.ClassificationMatched, "{}").
			AddRow(2, nil, 0.0, model.ClassificationUnmatched, "{no_candidate}"))

	outcomes, err := datasource.GetMatchOutcomes(context.Background(), "stl_1")
	assert.NoError(t, err)
	assert.Len(t, outcomes, 2)
	assert.Equal(t, 1, outcomes[0].Row)
	if assert.NotNil(t, outcomes[0].PaymentID) {
		assert.Equal(t, "pay_1", *outcomes[0].PaymentID)
	}
	assert.Nil(t, outcomes[1].PaymentID)
	assert.Equal(t, []string{model.ReasonNoCandidate}, outcomes[1].Reasons)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPaymentCandidates(t *testing.T) {
	datasource, mock := newMockDatasource(t)

	from := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)
	paidAt := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments")).
		WithArgs("tenant_1", sqlmock.AnyArg(), from, to).
		WillReturnRows(sqlmock.NewRows([]string{
			"payment_id", "amount", "currency", "provider_reference", "paid_at", "status",
		}).AddRow("pay_1", 10000, "USD", "pay_123", paidAt, model.PaymentStatusSettled))

	candidates, err := datasource.GetPaymentCandidates(context.Background(), "tenant_1", from, to)
	assert.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.Equal(t, "pay_1", candidates[0].PaymentID)
	assert.Equal(t, int64(10000), candidates[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
