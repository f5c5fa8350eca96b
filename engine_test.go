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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/settld-io/settld/model"
)

func TestRunMatchingEarlierRowClaimsCandidate(t *testing.T) {
	paidAt := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	records := []model.SettlementRecord{
		recordFixture(10000, "pay_123", paidAt),
		recordFixture(10000, "pay_123", paidAt),
	}
	records[1].Row = 2

	candidate := candidateFixture("pay_1", 10000, "pay_123")
	candidate.PaidAt = paidAt
	index := NewCandidateIndex([]*model.PaymentCandidate{candidate}, 0)

	outcomes := runMatching(context.Background(), records, nil, index, DefaultMatchConfig())
	assert.Len(t, outcomes, 2)

	assert.Equal(t, model.ClassificationMatched, outcomes[0].Classification)
	if assert.NotNil(t, outcomes[0].PaymentID) {
		assert.Equal(t, "pay_1", *outcomes[0].PaymentID)
	}

	assert.Equal(t, model.ClassificationUnmatched, outcomes[1].Classification)
	assert.Nil(t, outcomes[1].PaymentID)
	assert.Equal(t, []string{model.ReasonNoCandidate}, outcomes[1].Reasons)
}

func TestRunMatchingOneOutcomePerRow(t *testing.T) {
	paidAt := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	records := []model.SettlementRecord{
		recordFixture(10000, "pay_1", paidAt),
		recordFixture(20000, "pay_2", paidAt),
	}
	records[0].Row = 1
	records[1].Row = 3
	rowErrors := []model.RowError{{Row: 2, Message: "unparsable amount"}}

	index := NewCandidateIndex(nil, 0)
	outcomes := runMatching(context.Background(), records, rowErrors, index, DefaultMatchConfig())

	assert.Len(t, outcomes, 3)
	for i, outcome := range outcomes {
		assert.Equal(t, i+1, outcome.Row)
	}
	assert.Equal(t, []string{model.ReasonParseError}, outcomes[1].Reasons)
	assert.Equal(t, model.ClassificationUnmatched, outcomes[1].Classification)
}

func TestRunMatchingAtMostOneMatchPerPayment(t *testing.T) {
	paidAt := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	var records []model.SettlementRecord
	for i := 1; i <= 4; i++ {
		r := recordFixture(10000, "pay_shared", paidAt)
		r.Row = i
		records = append(records, r)
	}
	index := NewCandidateIndex([]*model.PaymentCandidate{
		candidateFixture("pay_1", 10000, "pay_shared"),
		candidateFixture("pay_2", 10000, "pay_shared"),
	}, 0)

	outcomes := runMatching(context.Background(), records, nil, index, DefaultMatchConfig())

	claimed := make(map[string]int)
	for _, outcome := range outcomes {
		if outcome.PaymentID != nil {
			claimed[*outcome.PaymentID]++
		}
	}
	for paymentID, n := range claimed {
		assert.Equalf(t, 1, n, "payment %s claimed more than once", paymentID)
	}
}

func TestMatchRecordPartialClassification(t *testing.T) {
	// Amount exact but nothing else: 60 points sits between the partial and
	// match thresholds.
	record := model.SettlementRecord{Row: 1, Amount: 10000, Currency: "USD", Reference: "other_ref"}
	candidate := candidateFixture("pay_1", 10000, "ref_xyz")
	index := NewCandidateIndex([]*model.PaymentCandidate{candidate}, 0)

	outcome := matchRecord(record, index, DefaultMatchConfig())
	assert.Equal(t, model.ClassificationPartial, outcome.Classification)
	assert.Equal(t, float64(60), outcome.Score)
	if assert.NotNil(t, outcome.PaymentID) {
		assert.Equal(t, "pay_1", *outcome.PaymentID)
	}
	assert.Contains(t, outcome.Reasons, model.ReasonReferenceMismatch)
	assert.True(t, index.Consumed("pay_1"))
}

func TestMatchRecordTieBreaks(t *testing.T) {
	recordDate := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	record := recordFixture(10000, "", recordDate)

	// Both dates fall outside the window so the scores tie at the amount
	// points; the smaller day delta must break the tie.
	near := candidateFixture("pay_near", 10000, "")
	near.PaidAt = recordDate.AddDate(0, 0, 4)
	far := candidateFixture("pay_far", 10000, "")
	far.PaidAt = recordDate.AddDate(0, 0, 5)

	index := NewCandidateIndex([]*model.PaymentCandidate{far, near}, 0)
	outcome := matchRecord(record, index, DefaultMatchConfig())
	if assert.NotNil(t, outcome.PaymentID) {
		assert.Equal(t, "pay_near", *outcome.PaymentID)
	}

	// Identical candidates: the earlier load ordinal wins.
	first := candidateFixture("pay_first", 10000, "")
	second := candidateFixture("pay_second", 10000, "")
	index = NewCandidateIndex([]*model.PaymentCandidate{first, second}, 0)
	outcome = matchRecord(record, index, DefaultMatchConfig())
	if assert.NotNil(t, outcome.PaymentID) {
		assert.Equal(t, "pay_first", *outcome.PaymentID)
	}
}

func TestRunMatchingRowPriorityOverGlobalAssignment(t *testing.T) {
	// Row order is claim priority, and each row takes its own highest-scoring
	// candidate. Widening the tolerance can therefore move an earlier row's
	// claim onto a candidate a later row would have needed: the run-level
	// matched+partial count is allowed to drop when the tolerance grows.
	// Reassigning claims globally would trade that for non-local, harder to
	// explain outcomes.
	records := []model.SettlementRecord{
		{Row: 1, Amount: 100, Currency: "USD", Reference: "ALPHA1"},
		{Row: 2, Amount: 105, Currency: "USD"},
	}
	newIndex := func(tolerance int64) *CandidateIndex {
		return NewCandidateIndex([]*model.PaymentCandidate{
			{PaymentID: "pay_y", Amount: 105, Currency: "USD", ProviderReference: "ALPHA1"},
			{PaymentID: "pay_x", Amount: 100, Currency: "USD", ProviderReference: "BETA99"},
		}, tolerance)
	}

	countClaimed := func(outcomes []model.MatchOutcome) int {
		n := 0
		for _, outcome := range outcomes {
			if outcome.Classification != model.ClassificationUnmatched {
				n++
			}
		}
		return n
	}

	exact := DefaultMatchConfig()
	outcomes := runMatching(context.Background(), records, nil, newIndex(exact.AmountTolerance), exact)
	// Exact amounts only: row 1 takes pay_x on amount, row 2 takes pay_y.
	assert.Equal(t, 2, countClaimed(outcomes))
	if assert.NotNil(t, outcomes[0].PaymentID) {
		assert.Equal(t, "pay_x", *outcomes[0].PaymentID)
	}
	if assert.NotNil(t, outcomes[1].PaymentID) {
		assert.Equal(t, "pay_y", *outcomes[1].PaymentID)
	}

	wide := DefaultMatchConfig()
	wide.AmountTolerance = 25
	outcomes = runMatching(context.Background(), records, nil, newIndex(wide.AmountTolerance), wide)
	// Tolerance credit plus the exact reference now makes pay_y row 1's best
	// pick (62 over pay_x's 60); row 2's fallback pay_x scores only the
	// in-tolerance amount points and stays unmatched.
	assert.Equal(t, 1, countClaimed(outcomes))
	if assert.NotNil(t, outcomes[0].PaymentID) {
		assert.Equal(t, "pay_y", *outcomes[0].PaymentID)
	}
	assert.Equal(t, model.ClassificationUnmatched, outcomes[1].Classification)
	assert.Nil(t, outcomes[1].PaymentID)
}

func TestCollectCandidatesUnionsReferenceHit(t *testing.T) {
	// The reference hit sits outside the amount window and must still be
	// considered.
	record := model.SettlementRecord{Row: 1, Amount: 10000, Currency: "USD", Reference: "pay_far"}
	inWindow := candidateFixture("pay_in", 10000, "other")
	outOfWindow := candidateFixture("pay_out", 99999, "pay_far")

	index := NewCandidateIndex([]*model.PaymentCandidate{inWindow, outOfWindow}, 0)
	candidates := collectCandidates(record, index, 0)

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.PaymentID)
	}
	assert.ElementsMatch(t, []string{"pay_in", "pay_out"}, ids)
}
