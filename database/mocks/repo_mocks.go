package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/settld-io/settld/model"
)

// MockDataSource is a testify mock of database.IDataSource.
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) RecordSettlement(ctx context.Context, settlement *model.Settlement, outcomes []model.MatchOutcome) error {
	args := m.Called(ctx, settlement, outcomes)
	return args.Error(0)
}

func (m *MockDataSource) GetSettlement(ctx context.Context, settlementID string) (*model.Settlement, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Settlement), args.Error(1)
}

func (m *MockDataSource) GetSettlementsByTenant(ctx context.Context, tenantID string, limit int) ([]*model.Settlement, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Settlement), args.Error(1)
}

func (m *MockDataSource) GetMatchOutcomes(ctx context.Context, settlementID string) ([]model.MatchOutcome, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MatchOutcome), args.Error(1)
}

func (m *MockDataSource) GetPaymentCandidates(ctx context.Context, tenantID string, from, to time.Time) ([]*model.PaymentCandidate, error) {
	args := m.Called(ctx, tenantID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PaymentCandidate), args.Error(1)
}
