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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRunReconciliation(t *testing.T) {
	valid := RunReconciliation{Cycle: "2026-08-28"}
	assert.NoError(t, valid.ValidateRunReconciliation())

	missingCycle := RunReconciliation{}
	assert.Error(t, missingCycle.ValidateRunReconciliation())

	badCycle := RunReconciliation{Cycle: "last tuesday"}
	assert.Error(t, badCycle.ValidateRunReconciliation())

	badTolerance := RunReconciliation{Cycle: "2026-08-28", AmountTolerance: -5}
	assert.Error(t, badTolerance.ValidateRunReconciliation())

	badThreshold := RunReconciliation{Cycle: "2026-08-28", MatchThreshold: 150}
	assert.Error(t, badThreshold.ValidateRunReconciliation())
}

func TestToReconciliationRequest(t *testing.T) {
	form := RunReconciliation{
		Provider:        "stripe",
		Cycle:           "2026-08-28",
		Currency:        "usd",
		AmountTolerance: 10,
		DryRun:          true,
	}

	req := form.ToReconciliationRequest([]byte("amount\n1.00\n"), "tenant_1", "admin_1")
	assert.Equal(t, "stripe", req.Provider)
	assert.Equal(t, "2026-08-28", req.Cycle)
	assert.Equal(t, "tenant_1", req.TenantID)
	assert.Equal(t, "admin_1", req.ActorID)
	assert.Equal(t, int64(10), req.AmountTolerance)
	assert.True(t, req.DryRun)
	assert.NotEmpty(t, req.File)
}

func TestToReconciliationRequestKeepsExplicitZeroWindow(t *testing.T) {
	zero := 0
	form := RunReconciliation{Cycle: "2026-08-28", DateWindowDays: &zero}

	req := form.ToReconciliationRequest([]byte("amount\n1.00\n"), "tenant_1", "")
	if assert.NotNil(t, req.DateWindowDays) {
		assert.Equal(t, 0, *req.DateWindowDays)
	}
}
