package observation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheIsolatesCopies(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	r := EconomicResource{ID: "A", AccountingQuantity: qty(3), ClassifiedAs: []string{"Apple"}, CreatedBy: "e1"}
	require.NoError(t, cache.Save(ctx, r))
	r.ClassifiedAs[0] = "Pear"
	r.AccountingQuantity.NumericValue = qty(99).NumericValue

	got, ok, err := cache.Load(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"Apple"}, got.ClassifiedAs)
	assert.True(t, got.AccountingQuantity.Equal(NewMeasure(3, "kg")))

	got.ClassifiedAs[0] = "Plum"
	again, _, _ := cache.Load(ctx, "A")
	assert.Equal(t, []string{"Apple"}, again.ClassifiedAs)

	require.NoError(t, cache.Invalidate(ctx, "A", "missing"))
	_, ok, err = cache.Load(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
}
