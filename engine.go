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
	"sort"

	"github.com/settld-io/settld/model"
)

// scoredCandidate pairs a candidate with its score for selection.
type scoredCandidate struct {
	candidate *model.PaymentCandidate
	score     float64
	reasons   []string
	dateDelta int
	ordinal   int
}

// runMatching classifies every settlement row against the candidate index,
// in file order. Row order is the claim priority: earlier rows get first
// claim on ambiguous candidates, so the loop is sequential by design, not by
// implementation convenience. Rows that failed parsing short-circuit scoring
// and come out as unmatched with a parse_error reason.
//
// The returned slice carries exactly one outcome per input row (parsed and
// errored alike), ordered by row index.
func runMatching(ctx context.Context, records []model.SettlementRecord, rowErrors []model.RowError, index *CandidateIndex, cfg MatchConfig) []model.MatchOutcome {
	_, span := tracer.Start(ctx, "MatchSettlementRecords")
	defer span.End()

	outcomes := make([]model.MatchOutcome, 0, len(records)+len(rowErrors))
	for _, record := range records {
		outcomes = append(outcomes, matchRecord(record, index, cfg))
	}
	for _, rowErr := range rowErrors {
		outcomes = append(outcomes, model.MatchOutcome{
			Row:            rowErr.Row,
			Classification: model.ClassificationUnmatched,
			Reasons:        []string{model.ReasonParseError},
		})
	}

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Row < outcomes[j].Row
	})
	return outcomes
}

// matchRecord scores the amount-window candidates unioned with any exact
// reference hit, selects the best and classifies the outcome. On matched and
// partial outcomes the chosen candidate is consumed so a later row cannot
// claim it.
func matchRecord(record model.SettlementRecord, index *CandidateIndex, cfg MatchConfig) model.MatchOutcome {
	candidates := collectCandidates(record, index, cfg.AmountTolerance)
	if len(candidates) == 0 {
		return model.MatchOutcome{
			Row:            record.Row,
			Classification: model.ClassificationUnmatched,
			Reasons:        []string{model.ReasonNoCandidate},
		}
	}

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		score, reasons := Score(record, candidate, cfg)
		scored = append(scored, scoredCandidate{
			candidate: candidate,
			score:     score,
			reasons:   reasons,
			dateDelta: candidateDateDelta(record, candidate),
			ordinal:   index.Ordinal(candidate.PaymentID),
		})
	}
	best := selectBest(scored)

	outcome := model.MatchOutcome{
		Row:     record.Row,
		Score:   best.score,
		Reasons: best.reasons,
	}
	switch {
	case best.score >= cfg.MatchThreshold:
		outcome.Classification = model.ClassificationMatched
	case best.score >= cfg.PartialThreshold:
		outcome.Classification = model.ClassificationPartial
	default:
		outcome.Classification = model.ClassificationUnmatched
	}

	if outcome.Classification != model.ClassificationUnmatched {
		paymentID := best.candidate.PaymentID
		outcome.PaymentID = &paymentID
		index.Consume(paymentID)
	}
	return outcome
}

// collectCandidates unions the amount-window lookup with an exact reference
// hit that the amount filter may have excluded.
func collectCandidates(record model.SettlementRecord, index *CandidateIndex, tolerance int64) []*model.PaymentCandidate {
	candidates := index.Lookup(record.Amount, tolerance)
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		seen[c.PaymentID] = true
	}
	for _, c := range index.LookupReference(record.Reference) {
		if !seen[c.PaymentID] {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// selectBest picks the highest score; ties go to the smaller absolute date
// delta, then to the earlier candidate in the original load order. The
// result is deterministic across reruns of the same inputs.
func selectBest(scored []scoredCandidate) scoredCandidate {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].dateDelta != scored[j].dateDelta {
			return scored[i].dateDelta < scored[j].dateDelta
		}
		return scored[i].ordinal < scored[j].ordinal
	})
	return scored[0]
}

// candidateDateDelta returns the tie-break day distance. A record without a
// date compares as the largest possible delta so dated agreements win ties.
func candidateDateDelta(record model.SettlementRecord, candidate *model.PaymentCandidate) int {
	if record.Date == nil || candidate.PaidAt.IsZero() {
		return int(^uint(0) >> 1)
	}
	return calendarDayDelta(*record.Date, candidate.PaidAt)
}
