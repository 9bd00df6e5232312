package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func raise(t *testing.T, svc *observation.Service, unit string) observation.CreateResult {
	t.Helper()
	q := observation.NewMeasure(5, unit)
	res, err := svc.CreateEvent(context.Background(),
		observation.EventInput{Action: "raise", ResourceQuantity: &q},
		&observation.ResourceInput{Name: "widgets"})
	require.NoError(t, err)
	return res
}

func TestNewEngineMemory(t *testing.T) {
	engine, err := NewEngine(context.Background(), EngineParams{
		Config: &Config{EventStore: StoreMemory, NegativeQuantityPolicy: "allow"},
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	defer engine.Close()

	created := raise(t, engine.Service, "kg")
	got, err := engine.Service.GetResource(context.Background(), created.Resource.ID)
	require.NoError(t, err)
	assert.Equal(t, "5", got.OnhandQuantity.NumericValue.String())
	assert.Nil(t, engine.Redis)
}

func TestNewEngineSQLiteWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &Config{
		EventStore:             StoreSQLite,
		SQLitePath:             filepath.Join(t.TempDir(), "events.db"),
		RedisAddr:              mr.Addr(),
		ProjectionCacheTTL:     0,
		NegativeQuantityPolicy: "reject",
		KnownUnits:             []string{"kg"},
	}
	engine, err := NewEngine(context.Background(), EngineParams{Config: cfg, Logger: quietLogger()})
	require.NoError(t, err)
	defer engine.Close()
	require.NotNil(t, engine.Redis)

	created := raise(t, engine.Service, "kg")
	assert.NotEmpty(t, mr.Keys())

	report, err := engine.Service.Verify(context.Background(), created.Resource.ID)
	require.NoError(t, err)
	assert.False(t, report.Drifted)

	q := observation.NewMeasure(1, "lb")
	_, err = engine.Service.CreateEvent(context.Background(), observation.EventInput{Action: "raise", ResourceQuantity: &q}, &observation.ResourceInput{})
	assert.ErrorIs(t, err, observation.ErrUnknownUnit)
}

func TestNewEngineFailures(t *testing.T) {
	_, err := NewEngine(context.Background(), EngineParams{})
	assert.Error(t, err)

	_, err = NewEngine(context.Background(), EngineParams{Config: &Config{EventStore: "mongo"}})
	assert.Error(t, err)

	_, err = NewEngine(context.Background(), EngineParams{Config: &Config{EventStore: StoreMemory, NegativeQuantityPolicy: "clamp"}})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewEngine(context.Background(), EngineParams{Config: &Config{EventStore: StoreMemory, RedisAddr: addr}, Logger: quietLogger()})
	assert.Error(t, err)
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	var engine *Engine
	assert.NoError(t, engine.Close())

	engine, err := NewEngine(context.Background(), EngineParams{
		Config: &Config{EventStore: StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "e.db")},
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	assert.NoError(t, engine.Close())
	assert.NoError(t, engine.Close())
}

func TestEnginesSharingSQLiteWithoutRedisStayConsistent(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{EventStore: StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "shared.db")}
	open := func() *Engine {
		engine, err := NewEngine(ctx, EngineParams{Config: cfg, Logger: quietLogger()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = engine.Close() })
		return engine
	}
	a, b := open(), open()

	id := raise(t, a.Service, "kg").Resource.ID
	seen, err := b.Service.GetResource(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "5", seen.AccountingQuantity.NumericValue.String())

	produced := observation.NewMeasure(5, "kg")
	_, err = a.Service.CreateEvent(ctx, observation.EventInput{Action: "produce", ResourceInventoriedAs: id, ResourceQuantity: &produced}, nil)
	require.NoError(t, err)

	seen, err = b.Service.GetResource(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "10", seen.AccountingQuantity.NumericValue.String(), "read after another process wrote")

	consumed := observation.NewMeasure(2, "kg")
	_, err = b.Service.CreateEvent(ctx, observation.EventInput{Action: "consume", ResourceInventoriedAs: id, ResourceQuantity: &consumed}, nil)
	require.NoError(t, err)

	history, err := a.Service.History(ctx, id)
	require.NoError(t, err)
	replayed, err := observation.Project(id, history)
	require.NoError(t, err)
	for _, svc := range []*observation.Service{a.Service, b.Service} {
		got, err := svc.GetResource(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "8", got.AccountingQuantity.NumericValue.String())
		assert.True(t, observation.SameProjection(replayed, got))
	}
}
