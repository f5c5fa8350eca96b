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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/settld-io/settld/model"
)

func TestAggregate(t *testing.T) {
	paymentID := "pay_1"
	records := []model.SettlementRecord{
		{Row: 1, Amount: 10000, Fee: 250, Currency: "USD"},
		{Row: 2, Amount: 5000, Fee: 100, Currency: "USD"},
		{Row: 3, Amount: 2000, Fee: 50, Currency: "USD"},
	}
	outcomes := []model.MatchOutcome{
		{Row: 1, PaymentID: &paymentID, Score: 100, Classification: model.ClassificationMatched},
		{Row: 2, Score: 60, Classification: model.ClassificationPartial, Reasons: []string{model.ReasonReferenceMismatch}},
		{Row: 3, Classification: model.ClassificationUnmatched, Reasons: []string{model.ReasonNoCandidate}},
	}

	settlement, result := aggregate("tenant_1", "stripe", "2026-08-28", outcomes, records)

	assert.True(t, strings.HasPrefix(settlement.SettlementID, "stl_"))
	assert.Equal(t, "tenant_1", settlement.TenantID)
	assert.Equal(t, "stripe", settlement.Provider)
	assert.Equal(t, "2026-08-28", settlement.Cycle)
	assert.Equal(t, int64(400), settlement.TotalFees)
	assert.Equal(t, int64(16600), settlement.NetAmount)

	assert.Equal(t, settlement.SettlementID, result.SettlementID)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.PartialMatches)
	assert.Equal(t, 1, result.Unmatched)
	assert.Equal(t, int64(17000), result.TotalAmount)

	// Non-matched rows become discrepancies, in row order, carrying the row's
	// parsed amount.
	assert.Len(t, result.Discrepancies, 2)
	assert.Equal(t, 2, result.Discrepancies[0].Row)
	assert.Equal(t, int64(5000), result.Discrepancies[0].Amount)
	assert.Equal(t, 3, result.Discrepancies[1].Row)
	assert.Equal(t, []string{model.ReasonNoCandidate}, result.Discrepancies[1].Reasons)
}

func TestAggregateCountsEveryRowInTotals(t *testing.T) {
	// Cash totals describe what arrived; even fully unmatched files conserve
	// the sums.
	records := []model.SettlementRecord{
		{Row: 1, Amount: 100, Fee: 10},
		{Row: 2, Amount: 200, Fee: 20},
	}
	outcomes := []model.MatchOutcome{
		{Row: 1, Classification: model.ClassificationUnmatched, Reasons: []string{model.ReasonNoCandidate}},
		{Row: 2, Classification: model.ClassificationUnmatched, Reasons: []string{model.ReasonNoCandidate}},
	}

	settlement, result := aggregate("tenant_1", "unknown", "2026-08-28", outcomes, records)
	assert.Equal(t, int64(300), result.TotalAmount)
	assert.Equal(t, int64(30), settlement.TotalFees)
	assert.Equal(t, int64(270), settlement.NetAmount)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 2, result.Unmatched)
}

func TestAggregateParseErrorRowHasZeroAmountDiscrepancy(t *testing.T) {
	// A row that never parsed has no record; its discrepancy still appears
	// with a zero amount so the count invariant holds.
	records := []model.SettlementRecord{{Row: 1, Amount: 100}}
	outcomes := []model.MatchOutcome{
		{Row: 1, Classification: model.ClassificationMatched},
		{Row: 2, Classification: model.ClassificationUnmatched, Reasons: []string{model.ReasonParseError}},
	}

	_, result := aggregate("tenant_1", "adyen", "2026-08-28", outcomes, records)
	assert.Len(t, result.Discrepancies, 1)
	assert.Equal(t, 2, result.Discrepancies[0].Row)
	assert.Equal(t, int64(0), result.Discrepancies[0].Amount)
}
