package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/history"
)

func TestQuoteRecordsHistoryAndLog(t *testing.T) {
	q := &mockQuoter{}
	req := domain.QuoteRequest{Amount: 0.5, Batch: true}
	q.On("Quote", mock.Anything, req).Return(domain.Quote{
		TokenSymbol: "WBTC",
		Amount:      0.5,
		TotalFee:    0.0026,
		FeeSources:  domain.FeeSources{BTCL1Fee: domain.FeeEstimated, StarknetFee: domain.FeeFallback},
	}, nil)

	ring := history.NewRing(10, 0)
	sink := &quoteSink{}
	svc := NewQuoteService(q, NewHistoryService(ring, nil, discard()), sink, discard())

	got, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0.0026, got.TotalFee)

	recs, err := ring.List(context.Background(), domain.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.KindQuote, recs[0].Kind)
	assert.True(t, recs[0].Batch)
	require.NotNil(t, recs[0].Quote)
	assert.Equal(t, "WBTC", recs[0].Quote.TokenSymbol)

	require.Len(t, sink.quotes, 1)
	q.AssertExpectations(t)
}

func TestQuoteErrorRecordsNothing(t *testing.T) {
	q := &mockQuoter{}
	q.On("Quote", mock.Anything, mock.Anything).Return(domain.Quote{}, domain.ErrInvalidInput)

	ring := history.NewRing(10, 0)
	sink := &quoteSink{}
	svc := NewQuoteService(q, NewHistoryService(ring, nil, discard()), sink, discard())

	_, err := svc.Quote(context.Background(), domain.QuoteRequest{Amount: -1})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	n, _ := ring.Len(context.Background())
	assert.Zero(t, n)
	assert.Empty(t, sink.quotes)
}
