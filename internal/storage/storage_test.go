package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *ResultStore {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "results", "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func envelope(query string, asins ...string) models.Envelope {
	env := models.Envelope{
		Success:  len(asins) > 0,
		Products: []models.Product{},
		Errors:   []models.ExtractionError{},
		Metadata: models.RunMetadata{
			Query:         query,
			ItemsReceived: len(asins),
			Elapsed:       2 * time.Second,
			StartedAt:     time.Date(2026, 3, 6, 11, 59, 0, 0, time.UTC),
		},
	}
	for _, asin := range asins {
		env.Products = append(env.Products, models.Product{
			ASIN:         asin,
			Title:        "Product " + asin,
			URL:          "https://www.amazon.com/dp/" + asin,
			Availability: models.AvailabilityUnknown,
			Images:       []models.Image{},
		})
	}
	return env
}

func TestResultStore_SaveAndLatest(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := envelope("laptop", "B0DTW26PXY")
	first.Metadata.CostUSD = models.Float(0.0042)
	_, err := s.Save(ctx, first)
	require.NoError(t, err)

	second := envelope("laptop", "B0DTW26PXY", "B08N5WRWNW")
	id, err := s.Save(ctx, second)
	require.NoError(t, err)

	_, err = s.Save(ctx, envelope("usb hub"))
	require.NoError(t, err)

	latest, err := s.Latest(ctx, "laptop")
	require.NoError(t, err)
	assert.Equal(t, id, latest.ID)
	assert.Equal(t, 2, latest.TotalResults)
	assert.True(t, latest.Success)
	assert.Nil(t, latest.CostUSD)
	assert.Equal(t, second.Products, latest.Envelope.Products)
	assert.Equal(t, 2*time.Second, latest.Envelope.Metadata.Elapsed)
	assert.Equal(t, time.Date(2026, 3, 6, 12, 0, 2, 0, time.UTC), latest.CreatedAt)

	_, err = s.Latest(ctx, "monitor")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultStore_List(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	empty, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	withCost := envelope("laptop", "B0DTW26PXY")
	withCost.Metadata.CostUSD = models.Float(0.01)
	_, err = s.Save(ctx, withCost)
	require.NoError(t, err)
	_, err = s.Save(ctx, envelope("usb hub"))
	require.NoError(t, err)

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "usb hub", list[0].Query)
	assert.False(t, list[0].Success)
	assert.Equal(t, "laptop", list[1].Query)
	require.NotNil(t, list[1].CostUSD)
	assert.Equal(t, 0.01, *list[1].CostUSD)

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
