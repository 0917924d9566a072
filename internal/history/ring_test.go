package history

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

func rec(id, btc, sn string) domain.HistoryRecord {
	return domain.HistoryRecord{ID: id, Kind: domain.KindDeposit, BTCAddress: btc, StarknetAddress: sn}
}

func ids(recs []domain.HistoryRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestFilterPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	r := NewRing(10, 0)
	require.NoError(t, r.Append(ctx, rec("1", "A", "sA")))
	require.NoError(t, r.Append(ctx, rec("2", "B", "sB")))
	require.NoError(t, r.Append(ctx, rec("3", "A", "sA")))
	require.NoError(t, r.Append(ctx, rec("4", "A", "sB")))

	got, err := r.List(ctx, domain.HistoryFilter{BTCAddress: "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "4"}, ids(got))

	got, err = r.List(ctx, domain.HistoryFilter{BTCAddress: "A", StarknetAddress: "sB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, ids(got))

	got, err = r.List(ctx, domain.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(got))

	got, err = r.List(ctx, domain.HistoryFilter{StarknetAddress: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestEviction(t *testing.T) {
	ctx := context.Background()
	r := NewRing(3, 1)
	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Append(ctx, rec(fmt.Sprint(i), "A", "s")))
	}

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := r.List(ctx, domain.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4", "5"}, ids(got))

	// Channel holds one; the second eviction was dropped.
	old := <-r.Evicted()
	assert.Equal(t, "1", old.ID)
	assert.Equal(t, uint64(1), r.Dropped())
}

func TestNoEvictionChannel(t *testing.T) {
	r := NewRing(1, 0)
	assert.Nil(t, r.Evicted())
	require.NoError(t, r.Append(context.Background(), rec("1", "A", "s")))
	require.NoError(t, r.Append(context.Background(), rec("2", "A", "s")))
	assert.Zero(t, r.Dropped())
}

func TestConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	r := NewRing(1000, 0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = r.Append(ctx, rec(fmt.Sprintf("%d-%d", g, i), "A", "s"))
				_, _ = r.List(ctx, domain.HistoryFilter{BTCAddress: "A"})
			}
		}(g)
	}
	wg.Wait()

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 400, n)
}
