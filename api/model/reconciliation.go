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

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/settld-io/settld"
)

// RunReconciliation carries the multipart form fields of an upload. Numeric
// fields arrive as form strings and are converted after validation; unset
// ones fall back to the server's configured defaults. DateWindowDays is a
// pointer so an explicit zero (same-day-only matching) survives binding as
// distinct from an absent field.
type RunReconciliation struct {
	Provider         string  `form:"provider"`
	Cycle            string  `form:"cycle"`
	Currency         string  `form:"currency"`
	AmountTolerance  int64   `form:"amount_tolerance"`
	DateWindowDays   *int    `form:"date_window_days"`
	MatchThreshold   float64 `form:"match_threshold"`
	PartialThreshold float64 `form:"partial_threshold"`
	DryRun           bool    `form:"dry_run"`
}

func validateCycleFormat(value interface{}) error {
	cycle, ok := value.(string)
	if !ok {
		return errors.New("invalid type for cycle")
	}
	if _, err := time.Parse("2006-01-02", cycle); err != nil {
		return errors.New("please format the cycle as 'YYYY-MM-DD' (e.g., 2026-08-30)")
	}
	return nil
}

func (r *RunReconciliation) ValidateRunReconciliation() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Cycle, validation.Required, validation.By(validateCycleFormat)),
		validation.Field(&r.AmountTolerance, validation.Min(int64(0))),
		validation.Field(&r.DateWindowDays, validation.Min(0)),
		validation.Field(&r.MatchThreshold, validation.Min(float64(0)), validation.Max(float64(100))),
		validation.Field(&r.PartialThreshold, validation.Min(float64(0)), validation.Max(float64(100))),
	)
}

// ToReconciliationRequest assembles the core request from the validated form
// plus the identity headers the gateway injected.
func (r *RunReconciliation) ToReconciliationRequest(file []byte, tenantID, actorID string) settld.ReconciliationRequest {
	return settld.ReconciliationRequest{
		File:             file,
		Provider:         r.Provider,
		Cycle:            r.Cycle,
		AmountTolerance:  r.AmountTolerance,
		DateWindowDays:   r.DateWindowDays,
		Currency:         r.Currency,
		TenantID:         tenantID,
		ActorID:          actorID,
		MatchThreshold:   r.MatchThreshold,
		PartialThreshold: r.PartialThreshold,
		DryRun:           r.DryRun,
	}
}
