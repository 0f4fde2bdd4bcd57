package diary

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/familytrip/internal/domain"
)

// PostgresRepository stores posts in the diary_posts table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, post domain.DiaryPost, score ScoreFunc) (_ domain.DiaryPost, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.DiaryPost{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	// Serializes ranking per author until commit.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, post.AuthorID); err != nil {
		return domain.DiaryPost{}, fmt.Errorf("lock author: %w", err)
	}

	from, to := dayBounds(post.CreateTime)
	var rank int
	err = tx.QueryRow(ctx, `
SELECT COUNT(*) FROM diary_posts
WHERE author_id = $1 AND create_time >= $2 AND create_time < $3;`,
		post.AuthorID, from, to,
	).Scan(&rank)
	if err != nil {
		return domain.DiaryPost{}, fmt.Errorf("count posts of the day: %w", err)
	}

	post.Points = decimal.NewNullDecimal(score(rank))

	var mediaURL, mediaType *string
	if post.Media != nil {
		mediaURL, mediaType = &post.Media.URL, &post.Media.Type
	}

	_, err = tx.Exec(ctx, `
INSERT INTO diary_posts (post_id, author_id, author_name, content, emoji, media_url, media_type, points, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`,
		post.PostID, post.AuthorID, post.AuthorName, post.Content, post.Emoji,
		mediaURL, mediaType, post.Points, post.CreateTime,
	)
	if err != nil {
		return domain.DiaryPost{}, fmt.Errorf("insert post: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.DiaryPost{}, fmt.Errorf("commit transaction: %w", err)
	}

	return post, nil
}

const selectPosts = `
SELECT post_id, author_id, author_name, content, emoji, media_url, media_type, points, create_time
FROM diary_posts`

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]domain.DiaryPost, error) {
	stmt := selectPosts + ` ORDER BY create_time DESC NULLS LAST, post_id DESC`
	args := []any{}
	if limit > 0 {
		stmt += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, stmt+";", args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}

	return collectPosts(rows)
}

func (r *PostgresRepository) ListChronological(ctx context.Context) ([]domain.DiaryPost, error) {
	rows, err := r.db.Query(ctx, selectPosts+` ORDER BY create_time ASC NULLS FIRST, post_id;`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}

	return collectPosts(rows)
}

func (r *PostgresRepository) SetPoints(ctx context.Context, postID string, points decimal.Decimal) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE diary_posts SET points = $2 WHERE post_id = $1 AND points IS NULL;`, postID, points)
	if err != nil {
		return false, fmt.Errorf("set post points: post=%s: %w", postID, err)
	}

	return tag.RowsAffected() > 0, nil
}

func collectPosts(rows pgx.Rows) ([]domain.DiaryPost, error) {
	posts, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.DiaryPost, error) {
		var (
			p                   domain.DiaryPost
			mediaURL, mediaType *string
			createTime          *time.Time
		)
		err := r.Scan(
			&p.PostID, &p.AuthorID, &p.AuthorName, &p.Content, &p.Emoji,
			&mediaURL, &mediaType, &p.Points, &createTime,
		)
		if mediaURL != nil && *mediaURL != "" {
			p.Media = &domain.Media{URL: *mediaURL}
			if mediaType != nil {
				p.Media.Type = *mediaType
			}
		}
		if createTime != nil {
			p.CreateTime = *createTime
		}
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect posts: %w", err)
	}

	return posts, nil
}
