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
	"time"

	"github.com/settld-io/settld/model"
)

// IDataSource is the storage contract the reconciliation core depends on.
// The engine receives it by injection and never reaches into ambient state.
type IDataSource interface {
	settlement
	payment
}

type settlement interface {
	RecordSettlement(ctx context.Context, settlement *model.Settlement, outcomes []model.MatchOutcome) error
	GetSettlement(ctx context.Context, settlementID string) (*model.Settlement, error)
	GetSettlementsByTenant(ctx context.Context, tenantID string, limit int) ([]*model.Settlement, error)
	GetMatchOutcomes(ctx context.Context, settlementID string) ([]model.MatchOutcome, error)
}

type payment interface {
	GetPaymentCandidates(ctx context.Context, tenantID string, from, to time.Time) ([]*model.PaymentCandidate, error)
}
