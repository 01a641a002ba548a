package repositories

import (
	"context"
	"fmt"

	"github.com/kanojo/studio/internal/db"
	"github.com/kanojo/studio/internal/models"
)

// PostgresGenerationRepository persists generation records.
type PostgresGenerationRepository struct {
	pool db.Pool
}

// NewPostgresGenerationRepository constructs a generation repository backed by PostgreSQL.
func NewPostgresGenerationRepository(pool db.Pool) *PostgresGenerationRepository {
	return &PostgresGenerationRepository{pool: pool}
}

const generationColumns = `id, user_id, prompt, status, url, error, created_at`

// Create inserts a generation record and returns it as stored.
func (r *PostgresGenerationRepository) Create(ctx context.Context, generation models.Generation) (models.Generation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Generation{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO generations (id, user_id, prompt, status, url, error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING `+generationColumns,
		generation.ID, generation.UserID, generation.Prompt, generation.Status,
		generation.URL, generation.Error, generation.CreatedAt.UTC(),
	)

	created, err := scanGeneration(row)
	if err != nil {
		if err = classify(err); isSentinel(err) {
			return models.Generation{}, err
		}
		return models.Generation{}, fmt.Errorf("insert generation: %w", err)
	}
	return created, nil
}

// MarkFailed moves a record to failed with message, clearing any url.
func (r *PostgresGenerationRepository) MarkFailed(ctx context.Context, id, message string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE generations
        SET status = $2, error = $3, url = NULL
        WHERE id = $1
    `, id, models.GenerationStatusFailed, message)
	if err != nil {
		return fmt.Errorf("mark generation failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkCompleted sets the url and completed status in one statement.
func (r *PostgresGenerationRepository) MarkCompleted(ctx context.Context, id, url string) (models.Generation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Generation{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE generations
        SET status = $2, url = $3, error = NULL
        WHERE id = $1
        RETURNING `+generationColumns,
		id, models.GenerationStatusCompleted, url,
	)

	updated, err := scanGeneration(row)
	if err != nil {
		if err = classify(err); isSentinel(err) {
			return models.Generation{}, err
		}
		return models.Generation{}, fmt.Errorf("mark generation completed: %w", err)
	}
	return updated, nil
}

// ListForUser returns up to limit of the user's generations, newest first,
// skipping the first offset.
func (r *PostgresGenerationRepository) ListForUser(ctx context.Context, userID string, offset, limit int) ([]models.Generation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+generationColumns+`
        FROM generations
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3
    `, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	generations := make([]models.Generation, 0)
	for rows.Next() {
		generation, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		generations = append(generations, generation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}

	return generations, nil
}

// Delete removes a generation owned by userID and returns the deleted record.
func (r *PostgresGenerationRepository) Delete(ctx context.Context, userID, id string) (models.Generation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Generation{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        DELETE FROM generations
        WHERE id = $1 AND user_id = $2
        RETURNING `+generationColumns,
		id, userID,
	)

	deleted, err := scanGeneration(row)
	if err != nil {
		if err = classify(err); isSentinel(err) {
			return models.Generation{}, err
		}
		return models.Generation{}, fmt.Errorf("delete generation: %w", err)
	}
	return deleted, nil
}

func scanGeneration(row rowScanner) (models.Generation, error) {
	var generation models.Generation
	if err := row.Scan(
		&generation.ID,
		&generation.UserID,
		&generation.Prompt,
		&generation.Status,
		&generation.URL,
		&generation.Error,
		&generation.CreatedAt,
	); err != nil {
		return models.Generation{}, err
	}
	generation.CreatedAt = generation.CreatedAt.UTC()
	return generation, nil
}
