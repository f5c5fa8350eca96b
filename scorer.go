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
	"math"
	"strings"
	"time"

	"github.com/settld-io/settld/model"
)

// Signal weights. Amount dominates; a partial reference plus amount tolerance
// plus date proximity can still corroborate a match, but neither reference
// nor date alone can cross the partial threshold.
const (
	amountExactPoints      = 60.0
	amountTolerancePoints  = 40.0
	referenceExactPoints   = 30.0
	referencePartialPoints = 15.0
	datePoints             = 10.0

	// minSubstringReferenceLen guards partial reference credit against
	// trivially short containments.
	minSubstringReferenceLen = 4
)

// MatchConfig carries the per-run matching parameters.
type MatchConfig struct {
	// AmountTolerance is the maximum allowed amount deviation in minor units
	// for a non-exact amount match.
	AmountTolerance int64
	// DateWindowDays is the maximum allowed day distance between a settlement
	// row's date and a candidate's paid-at date.
	DateWindowDays int
	// MatchThreshold is the minimum score classified as matched.
	MatchThreshold float64
	// PartialThreshold is the minimum score classified as partial.
	PartialThreshold float64
}

// DefaultMatchConfig returns the thresholds the run parameters default to.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		AmountTolerance:  0,
		DateWindowDays:   3,
		MatchThreshold:   90,
		PartialThreshold: 60,
	}
}

// Score computes a 0-100 confidence for one record/candidate pair from
// independent signal checks, plus reason codes for any shortfall. A currency
// mismatch is an automatic zero: currency correctness cannot be compensated
// by other signals.
func Score(record model.SettlementRecord, candidate *model.PaymentCandidate, cfg MatchConfig) (float64, []string) {
	if record.Currency != "" && candidate.Currency != "" &&
		!strings.EqualFold(record.Currency, candidate.Currency) {
		return 0, []string{model.ReasonCurrencyMismatch}
	}

	var score float64
	var reasons []string

	points, reason := scoreAmount(record.Amount, candidate.Amount, cfg.AmountTolerance)
	score += points
	if reason != "" {
		reasons = append(reasons, reason)
	}

	points, reason = scoreReference(record.Reference, candidate.ProviderReference)
	score += points
	if reason != "" {
		reasons = append(reasons, reason)
	}

	points, reason = scoreDate(record.Date, candidate.PaidAt, cfg.DateWindowDays)
	score += points
	if reason != "" {
		reasons = append(reasons, reason)
	}

	return clampScore(score), reasons
}

// scoreAmount awards full points for an exact match and linearly decaying
// points inside the tolerance band.
func scoreAmount(recordAmount, candidateAmount, tolerance int64) (float64, string) {
	diff := recordAmount - candidateAmount
	if diff < 0 {
		diff = -diff
	}
	if diff == 0 {
		return amountExactPoints, ""
	}
	if tolerance > 0 && diff <= tolerance {
		return amountTolerancePoints * float64(tolerance-diff) / float64(tolerance), ""
	}
	return 0, model.ReasonAmountOutsideTolerance
}

// scoreReference awards exact-fold and substring credit. Absence on either
// side is neutral: losing the signal is penalty enough.
func scoreReference(recordRef, candidateRef string) (float64, string) {
	a := normalizeReference(recordRef)
	b := normalizeReference(candidateRef)
	if a == "" || b == "" {
		return 0, ""
	}
	if a == b {
		return referenceExactPoints, ""
	}
	shorter := a
	if len(b) < len(shorter) {
		shorter = b
	}
	if len(shorter) >= minSubstringReferenceLen &&
		(strings.Contains(a, b) || strings.Contains(b, a)) {
		return referencePartialPoints, ""
	}
	return 0, model.ReasonReferenceMismatch
}

// scoreDate awards same-day credit decaying linearly to zero at the window
// edge. A date present on only one side is neutral.
func scoreDate(recordDate *time.Time, paidAt time.Time, windowDays int) (float64, string) {
	if recordDate == nil || paidAt.IsZero() {
		return 0, ""
	}
	delta := calendarDayDelta(*recordDate, paidAt)
	if delta == 0 {
		return datePoints, ""
	}
	if delta <= windowDays {
		return datePoints * float64(windowDays-delta) / float64(windowDays), ""
	}
	return 0, model.ReasonDateOutOfWindow
}

// calendarDayDelta returns the absolute distance in calendar days, ignoring
// the time of day on either side.
func calendarDayDelta(a, b time.Time) int {
	aDay := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bDay := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Abs(aDay.Sub(bDay).Hours() / 24))
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
