package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/magefree/mage-combat-go/internal/game"
	"go.uber.org/zap"
)

const createDamageTable = `
CREATE TABLE IF NOT EXISTS combat_damage (
	id           BIGSERIAL PRIMARY KEY,
	game_id      TEXT        NOT NULL,
	turn         INTEGER     NOT NULL,
	source_id    TEXT        NOT NULL,
	target_id    TEXT        NOT NULL,
	amount       INTEGER     NOT NULL,
	first_strike BOOLEAN     NOT NULL DEFAULT FALSE,
	to_player    BOOLEAN     NOT NULL DEFAULT FALSE,
	dealt_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS combat_damage_game_idx ON combat_damage (game_id, target_id);
`

const insertDamage = `
INSERT INTO combat_damage (game_id, turn, source_id, target_id, amount, first_strike, to_player, dealt_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const sumDamageTo = `
SELECT COALESCE(SUM(amount), 0) FROM combat_damage WHERE game_id = $1 AND target_id = $2`

const sumDamageBy = `
SELECT COALESCE(SUM(amount), 0) FROM combat_damage WHERE game_id = $1 AND source_id = $2`

// DamageRepository is the combat damage log. It is a game.DamageSink.
type DamageRepository struct {
	db     DB
	logger *zap.Logger
}

var _ game.DamageSink = (*DamageRepository)(nil)

// NewDamageRepository creates a damage log over db.
func NewDamageRepository(db DB, logger *zap.Logger) *DamageRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DamageRepository{db: db, logger: logger}
}

// EnsureSchema creates the damage table if it doesn't exist.
func (r *DamageRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createDamageTable); err != nil {
		return fmt.Errorf("failed to create combat_damage: %w", err)
	}
	return nil
}

// RecordDamage stores the records of one damage step in a single batch.
func (r *DamageRepository) RecordDamage(ctx context.Context, records []game.DamageRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertDamage,
			rec.GameID,
			rec.Turn,
			rec.SourceID,
			rec.TargetID,
			rec.Amount,
			rec.FirstStrike,
			rec.ToPlayer,
			rec.Timestamp,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	for i := range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert damage record %d of %d: %w", i+1, len(records), err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close damage batch: %w", err)
	}

	r.logger.Debug("combat damage recorded",
		zap.String("game_id", records[0].GameID),
		zap.Int("records", len(records)))
	return nil
}

// DamageTo returns the combat damage logged against targetID in a game.
func (r *DamageRepository) DamageTo(ctx context.Context, gameID, targetID string) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, sumDamageTo, gameID, targetID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum damage to %s: %w", targetID, err)
	}
	return total, nil
}

// DamageBy returns the combat damage logged for sourceID in a game.
func (r *DamageRepository) DamageBy(ctx context.Context, gameID, sourceID string) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, sumDamageBy, gameID, sourceID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum damage by %s: %w", sourceID, err)
	}
	return total, nil
}
