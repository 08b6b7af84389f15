package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/magefree/mage-combat-go/internal/game"
	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeDB struct {
	mu       sync.Mutex
	execs    []string
	batches  []*pgx.Batch
	queries  []string
	args     [][]any
	execErr  error
	batchErr error
	closeErr error
	sum      int
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), f.execErr
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	return fakeRow{value: f.sum}
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return &fakeResults{err: f.batchErr, closeErr: f.closeErr}
}

func (f *fakeDB) queued() []*pgx.QueuedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*pgx.QueuedQuery
	for _, b := range f.batches {
		out = append(out, b.QueuedQueries...)
	}
	return out
}

type fakeRow struct{ value int }

func (r fakeRow) Scan(dest ...any) error {
	*dest[0].(*int) = r.value
	return nil
}

type fakeResults struct {
	err      error
	closeErr error
	closed   bool
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }

func (r *fakeResults) QueryRow() pgx.Row { return fakeRow{} }

func (r *fakeResults) Close() error {
	r.closed = true
	return r.closeErr
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	repo := NewDamageRepository(db, zaptest.NewLogger(t))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS combat_damage")

	db.execErr = errors.New("permission denied")
	assert.ErrorContains(t, repo.EnsureSchema(context.Background()), "permission denied")
}

func TestRecordDamageQueuesOneInsertPerRecord(t *testing.T) {
	db := &fakeDB{}
	repo := NewDamageRepository(db, zaptest.NewLogger(t))
	now := time.Now()

	records := []game.DamageRecord{
		{GameID: "g1", Turn: 2, SourceID: "wurm", TargetID: "bear", Amount: 2, Timestamp: now},
		{GameID: "g1", Turn: 2, SourceID: "wurm", TargetID: "bob", Amount: 5, ToPlayer: true, Timestamp: now},
	}
	require.NoError(t, repo.RecordDamage(context.Background(), records))

	queued := db.queued()
	require.Len(t, queued, 2)
	assert.Contains(t, queued[0].SQL, "INSERT INTO combat_damage")
	assert.Equal(t, []any{"g1", 2, "wurm", "bear", 2, false, false, now}, queued[0].Arguments)
	assert.Equal(t, []any{"g1", 2, "wurm", "bob", 5, false, true, now}, queued[1].Arguments)
}

func TestRecordDamageNothingToRecord(t *testing.T) {
	db := &fakeDB{}
	repo := NewDamageRepository(db, nil)

	require.NoError(t, repo.RecordDamage(context.Background(), nil))
	assert.Empty(t, db.batches)
}

func TestRecordDamageErrors(t *testing.T) {
	records := []game.DamageRecord{{GameID: "g1", SourceID: "a", TargetID: "b", Amount: 1}}

	db := &fakeDB{batchErr: errors.New("unique violation")}
	err := NewDamageRepository(db, nil).RecordDamage(context.Background(), records)
	assert.ErrorContains(t, err, "record 1 of 1")
	assert.ErrorContains(t, err, "unique violation")

	db = &fakeDB{closeErr: errors.New("connection reset")}
	err = NewDamageRepository(db, nil).RecordDamage(context.Background(), records)
	assert.ErrorContains(t, err, "connection reset")
}

func TestDamageSums(t *testing.T) {
	db := &fakeDB{sum: 7}
	repo := NewDamageRepository(db, nil)

	total, err := repo.DamageTo(context.Background(), "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 7, total)

	total, err = repo.DamageBy(context.Background(), "g1", "wurm")
	require.NoError(t, err)
	assert.Equal(t, 7, total)

	require.Len(t, db.args, 2)
	assert.Equal(t, []any{"g1", "bob"}, db.args[0])
	assert.Contains(t, db.queries[0], "target_id")
	assert.Equal(t, []any{"g1", "wurm"}, db.args[1])
	assert.Contains(t, db.queries[1], "source_id")
}

func TestEngineWritesDamageLog(t *testing.T) {
	db := &fakeDB{}
	logger := zaptest.NewLogger(t)
	engine := game.NewEngine(logger, game.Options{})
	engine.SetDamageSink(NewDamageRepository(db, logger))

	require.NoError(t, engine.StartGame("g1", []game.PlayerInfo{{ID: "alice", Name: "Alice"}, {ID: "bob", Name: "Bob"}}))
	require.NoError(t, engine.AddPermanent("g1", battlefield.NewCreature("wurm", "Craw Wurm", "alice", 6, 4, battlefield.AbilityTrample)))
	require.NoError(t, engine.AddPermanent("g1", battlefield.NewCreature("bear", "Grizzly Bears", "bob", 2, 2)))

	require.NoError(t, engine.BeginCombat("g1", "alice"))
	require.NoError(t, engine.DeclareAttacker("g1", "wurm", "bob", "alice"))
	require.NoError(t, engine.FinishDeclaringAttackers("g1"))
	require.NoError(t, engine.DeclareBlocker("g1", "bear", "wurm", "bob"))
	legal, err := engine.FinishDeclaringBlockers("g1", "bob")
	require.NoError(t, err)
	require.True(t, legal)
	require.NoError(t, engine.RunDamageSteps("g1"))

	amounts := make(map[string]int)
	for _, q := range db.queued() {
		amounts[q.Arguments[2].(string)+">"+q.Arguments[3].(string)] += q.Arguments[4].(int)
	}
	assert.Equal(t, map[string]int{"wurm>bear": 2, "wurm>bob": 4, "bear>wurm": 2}, amounts)
}
