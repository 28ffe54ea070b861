package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/langduel/vocab-arena/internal/arena"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertDuelResult = `
INSERT INTO duel_results (
	match_id, room_code,
	player1_uid, player1_name, player1_score,
	player2_uid, player2_name, player2_score,
	finished_by, winner_score, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (match_id) DO NOTHING`

const upsertPlayerTotal = `
INSERT INTO player_totals (player_uid, player_name, duels_played, duels_won, total_score)
VALUES ($1, $2, 1, $3, $4)
ON CONFLICT (player_uid) DO UPDATE SET
	player_name  = EXCLUDED.player_name,
	duels_played = player_totals.duels_played + 1,
	duels_won    = player_totals.duels_won + EXCLUDED.duels_won,
	total_score  = player_totals.total_score + EXCLUDED.total_score,
	updated_at   = now()`

// ResultRepository writes finished-duel records to Postgres. The duel
// itself never reads these rows; they exist for reporting.
type ResultRepository struct {
	db     DBTX
	logger zerolog.Logger
}

// NewResultRepository constructs a new result repository.
func NewResultRepository(db DBTX, logger zerolog.Logger) *ResultRepository {
	return &ResultRepository{db: db, logger: logger}
}

// RecordDuel persists one finished duel and rolls both players' totals
// forward. The insert is idempotent on match_id so a retried finish
// cannot double-count.
func (r *ResultRepository) RecordDuel(ctx context.Context, result arena.DuelResult) error {
	tag, err := r.db.Exec(ctx, insertDuelResult,
		result.MatchID, result.RoomCode,
		result.Player1.UID, result.Player1.Name, result.Player1.Score,
		result.Player2.UID, result.Player2.Name, result.Player2.Score,
		result.FinishedBy, result.WinnerScore, result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert duel result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug().Str("match_id", result.MatchID.String()).Msg("duel result already recorded")
		return nil
	}

	players := []arena.Player{result.Player1, result.Player2}
	for i, p := range players {
		won := 0
		if p.Score > players[1-i].Score {
			won = 1
		}
		if _, err := r.db.Exec(ctx, upsertPlayerTotal, p.UID, p.Name, won, p.Score); err != nil {
			return fmt.Errorf("upsert player total: %w", err)
		}
	}
	return nil
}
