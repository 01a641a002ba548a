package repositories

import (
	"context"
	"fmt"

	"github.com/kanojo/studio/internal/db"
	"github.com/kanojo/studio/internal/models"
)

// PostgresMomentRepository reads and deletes moments and their photos.
type PostgresMomentRepository struct {
	pool db.Pool
}

// NewPostgresMomentRepository constructs a moment repository backed by PostgreSQL.
func NewPostgresMomentRepository(pool db.Pool) *PostgresMomentRepository {
	return &PostgresMomentRepository{pool: pool}
}

// ListPage returns up to limit moments for userID starting at offset, newest
// first, each with its photos in creation order.
func (r *PostgresMomentRepository) ListPage(ctx context.Context, userID string, offset, limit int) ([]models.Moment, error) {
	if offset < 0 {
		offset = 0
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, prompt, created_at
        FROM moments
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3
    `, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query moments: %w", err)
	}

	moments := make([]models.Moment, 0, limit)
	index := make(map[string]int)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var moment models.Moment
		if err := rows.Scan(&moment.ID, &moment.UserID, &moment.Prompt, &moment.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan moment: %w", err)
		}
		moment.CreatedAt = moment.CreatedAt.UTC()
		moment.Photos = make([]models.Photo, 0)
		index[moment.ID] = len(moments)
		ids = append(ids, moment.ID)
		moments = append(moments, moment)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moments: %w", err)
	}

	if len(ids) == 0 {
		return moments, nil
	}

	photoRows, err := conn.Query(ctx, `
        SELECT id, moment_id, url, created_at
        FROM photos
        WHERE moment_id = ANY($1)
        ORDER BY created_at ASC, id ASC
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer photoRows.Close()

	for photoRows.Next() {
		var photo models.Photo
		if err := photoRows.Scan(&photo.ID, &photo.MomentID, &photo.URL, &photo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photo.CreatedAt = photo.CreatedAt.UTC()
		if i, ok := index[photo.MomentID]; ok {
			moments[i].Photos = append(moments[i].Photos, photo)
		}
	}

	if err := photoRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}

	return moments, nil
}

// Delete removes a moment owned by userID. Its photos are removed by the
// foreign key cascade.
func (r *PostgresMomentRepository) Delete(ctx context.Context, userID, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM moments
        WHERE id = $1 AND user_id = $2
    `, id, userID)
	if err != nil {
		return fmt.Errorf("delete moment: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
