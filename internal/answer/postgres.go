package answer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/errors"
)

// PostgresRepository stores answer records in the quiz_answers table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Put(ctx context.Context, rec domain.AnswerRecord) error {
	// The WHERE clause keeps a correct answer from ever being replaced.
	const stmt = `
INSERT INTO quiz_answers (question_id, family_index, user_name, answer_key, is_correct, points, attempts, answer_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (question_id, family_index) DO UPDATE SET
	user_name   = EXCLUDED.user_name,
	answer_key  = EXCLUDED.answer_key,
	is_correct  = EXCLUDED.is_correct,
	points      = EXCLUDED.points,
	attempts    = EXCLUDED.attempts,
	answer_time = EXCLUDED.answer_time
WHERE NOT quiz_answers.is_correct;`

	tag, err := r.db.Exec(ctx, stmt,
		rec.QuestionID, rec.FamilyIndex, rec.UserName, rec.AnswerKey,
		rec.IsCorrect, rec.Points, rec.Attempts, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return errors.AlreadyAnswered(rec.QuestionID, rec.FamilyIndex)
	}

	return nil
}

const selectAnswers = `
SELECT question_id, family_index, user_name, answer_key, is_correct, points, attempts, answer_time
FROM quiz_answers`

func (r *PostgresRepository) GetAll(ctx context.Context) ([]domain.AnswerRecord, error) {
	rows, err := r.db.Query(ctx, selectAnswers+` ORDER BY question_id, family_index;`)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}

	return collectAnswers(rows)
}

func (r *PostgresRepository) GetForQuestion(ctx context.Context, questionID int) ([]domain.AnswerRecord, error) {
	rows, err := r.db.Query(ctx, selectAnswers+` WHERE question_id = $1 ORDER BY family_index;`, questionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: question=%d: %w", questionID, err)
	}

	return collectAnswers(rows)
}

func (r *PostgresRepository) CreditLegacy(ctx context.Context, key domain.AnswerKey, points decimal.Decimal) (bool, error) {
	const stmt = `
UPDATE quiz_answers SET points = $3
WHERE question_id = $1 AND family_index = $2
	AND is_correct AND (points IS NULL OR points = 0);`

	tag, err := r.db.Exec(ctx, stmt, key.QuestionID, key.FamilyIndex, points)
	if err != nil {
		return false, fmt.Errorf("credit legacy answer: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func collectAnswers(rows pgx.Rows) ([]domain.AnswerRecord, error) {
	records, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.AnswerRecord, error) {
		var rec domain.AnswerRecord
		err := r.Scan(
			&rec.QuestionID, &rec.FamilyIndex, &rec.UserName, &rec.AnswerKey,
			&rec.IsCorrect, &rec.Points, &rec.Attempts, &rec.Timestamp,
		)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect answers: %w", err)
	}

	return records, nil
}
