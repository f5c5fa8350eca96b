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
package model

import "time"

// Classification values for a MatchOutcome.
const (
	ClassificationMatched   = "matched"
	ClassificationPartial   = "partial"
	ClassificationUnmatched = "unmatched"
)

// Reason codes attached to outcomes that fell short of a full match.
const (
	ReasonAmountOutsideTolerance = "amount_outside_tolerance"
	ReasonReferenceMismatch      = "reference_mismatch"
	ReasonDateOutOfWindow        = "date_out_of_window"
	ReasonCurrencyMismatch       = "currency_mismatch"
	ReasonNoCandidate            = "no_candidate"
	ReasonParseError             = "parse_error"
)

// Ledger statuses eligible for candidate loading. Only money that has
// actually moved can be reconciled against a settlement file.
const (
	PaymentStatusPaid    = "paid"
	PaymentStatusSettled = "settled"
)

// SettlementRecord is one parsed row of an uploaded settlement file. Amounts
// are integer minor units. Immutable once parsed.
type SettlementRecord struct {
	Row       int        `json:"row"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	Reference string     `json:"reference,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	Fee       int64      `json:"fee"`
}

// RowError is a non-fatal parse failure for a single file row. The row is
// skipped but still accounted for as an unmatched outcome.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// PaymentCandidate is a read-only projection of an internal ledger payment
// eligible for matching.
type PaymentCandidate struct {
	PaymentID         string    `json:"payment_id"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	ProviderReference string    `json:"provider_reference"`
	PaidAt            time.Time `json:"paid_at"`
	Status            string    `json:"status"`
}

// MatchOutcome records the classification of one settlement row. Exactly one
// outcome exists per input row, and at most one outcome references a given
// payment.
type MatchOutcome struct {
	Row            int      `json:"row"`
	PaymentID      *string  `json:"payment_id,omitempty"`
	Score          float64  `json:"score"`
	Classification string   `json:"classification"`
	Reasons        []string `json:"reasons,omitempty"`
}

// Settlement is the persisted summary of one reconciliation run. Never
// mutated after creation; corrections require a new run.
type Settlement struct {
	ID           int64     `json:"-"`
	SettlementID string    `json:"settlement_id"`
	TenantID     string    `json:"tenant_id"`
	Provider     string    `json:"provider"`
	Cycle        string    `json:"cycle"`
	TotalFees    int64     `json:"total_fees"`
	NetAmount    int64     `json:"net_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

// Discrepancy is one reported shortfall, carried in the run result in
// original row order.
type Discrepancy struct {
	Row      int      `json:"row"`
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	Reasons  []string `json:"reasons"`
}

// ReconciliationResult is the transient output contract of one run. It is not
// persisted as its own entity; it can be replayed from the Settlement plus its
// stored outcomes.
type ReconciliationResult struct {
	SettlementID   string        `json:"settlement_id"`
	Matched        int           `json:"matched"`
	Unmatched      int           `json:"unmatched"`
	PartialMatches int           `json:"partial_matches"`
	TotalAmount    int64         `json:"total_amount"`
	Discrepancies  []Discrepancy `json:"discrepancies"`
}

// AuditRecord describes a completed run for external delivery. The core emits
// it; delivery is a collaborator concern.
type AuditRecord struct {
	ActorID      string     `json:"actor_id"`
	TenantID     string     `json:"tenant_id"`
	Provider     string     `json:"provider"`
	SettlementID string     `json:"settlement_id,omitempty"`
	Matched      int        `json:"matched"`
	Unmatched    int        `json:"unmatched"`
	Partial      int        `json:"partial"`
	DryRun       bool       `json:"dry_run"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
