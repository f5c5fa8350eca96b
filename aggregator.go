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
	"sort"
	"time"

	"github.com/settld-io/settld/model"
)

// runTotals is the fixed-field accumulator the aggregation folds into. A
// settlement's cash totals are a statement of what arrived, independent of
// how much of it reconciled, so every parsed row contributes regardless of
// its match outcome.
type runTotals struct {
	grossAmount int64
	totalFees   int64
	matched     int
	partial     int
	unmatched   int
}

// aggregate folds match outcomes and parsed records into one Settlement plus
// the run's ReconciliationResult. The discrepancy list carries every
// non-matched outcome in original row order for operator readability.
func aggregate(tenantID, provider, cycle string, outcomes []model.MatchOutcome, records []model.SettlementRecord) (model.Settlement, model.ReconciliationResult) {
	totals := runTotals{}
	recordsByRow := make(map[int]model.SettlementRecord, len(records))
	for _, record := range records {
		totals.grossAmount += record.Amount
		totals.totalFees += record.Fee
		recordsByRow[record.Row] = record
	}

	var discrepancies []model.Discrepancy
	for _, outcome := range outcomes {
		switch outcome.Classification {
		case model.ClassificationMatched:
			totals.matched++
			continue
		case model.ClassificationPartial:
			totals.partial++
		default:
			totals.unmatched++
		}
		record := recordsByRow[outcome.Row]
		discrepancies = append(discrepancies, model.Discrepancy{
			Row:      outcome.Row,
			Amount:   record.Amount,
			Currency: record.Currency,
			Reasons:  outcome.Reasons,
		})
	}
	sort.Slice(discrepancies, func(i, j int) bool {
		return discrepancies[i].Row < discrepancies[j].Row
	})

	settlement := model.Settlement{
		SettlementID: model.GenerateUUIDWithSuffix("stl"),
		TenantID:     tenantID,
		Provider:     provider,
		Cycle:        cycle,
		TotalFees:    totals.totalFees,
		NetAmount:    totals.grossAmount - totals.totalFees,
		CreatedAt:    time.Now(),
	}

	result := model.ReconciliationResult{
		SettlementID:   settlement.SettlementID,
		Matched:        totals.matched,
		Unmatched:      totals.unmatched,
		PartialMatches: totals.partial,
		TotalAmount:    totals.grossAmount,
		Discrepancies:  discrepancies,
	}

	return settlement, result
}
