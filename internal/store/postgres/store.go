// Package postgres stores personal links in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

const linkColumns = `account_survey_id, url, status, expires, participant_id, details, created_at, assigned_at`

// Store implements personallinks.Store on the personal_links table.
type Store struct {
	db *sqlx.DB
}

// New creates a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

var _ personallinks.Store = (*Store)(nil)

// linkRow is the database shape of a link.
type linkRow struct {
	AccountSurveyID string         `db:"account_survey_id"`
	URL             string         `db:"url"`
	Status          string         `db:"status"`
	Expires         time.Time      `db:"expires"`
	ParticipantID   sql.NullString `db:"participant_id"`
	Details         []byte         `db:"details"`
	CreatedAt       time.Time      `db:"created_at"`
	AssignedAt      sql.NullTime   `db:"assigned_at"`
}

func (r linkRow) toLink() (personallinks.Link, error) {
	l := personallinks.Link{
		PoolID:        personallinks.PoolID(r.AccountSurveyID),
		URL:           r.URL,
		Status:        personallinks.Status(r.Status),
		Expires:       r.Expires.UTC(),
		ParticipantID: r.ParticipantID.String,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.AssignedAt.Valid {
		at := r.AssignedAt.Time.UTC()
		l.AssignedAt = &at
	}
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &l.Details); err != nil {
			return personallinks.Link{}, fmt.Errorf("decode details of %s: %w", r.URL, err)
		}
	}
	return l, nil
}

// PutBatch inserts the links in one transaction. Links already present are
// left untouched.
func (s *Store) PutBatch(ctx context.Context, pool personallinks.PoolID, links []personallinks.Link) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO personal_links (account_survey_id, url, status, expires, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_survey_id, url) DO NOTHING
	`

	for _, l := range links {
		details, marshalErr := marshalDetails(l.Details)
		if marshalErr != nil {
			return fmt.Errorf("encode details of %s: %w", l.URL, marshalErr)
		}

		if _, execErr := tx.ExecContext(ctx, query,
			pool.String(), l.URL, string(personallinks.StatusNew), l.Expires.UTC(), details, l.CreatedAt.UTC(),
		); execErr != nil {
			return fmt.Errorf("insert link: %w", execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit links: %w", commitErr)
	}
	return nil
}

// QueryUnassigned returns the pool's links with status new.
func (s *Store) QueryUnassigned(ctx context.Context, pool personallinks.PoolID) ([]personallinks.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM personal_links
		WHERE account_survey_id = $1 AND status = $2
		ORDER BY expires ASC, url ASC`

	return s.selectLinks(ctx, query, pool.String(), string(personallinks.StatusNew))
}

// QueryAssignedForParticipant returns the pool's links held by participantID.
func (s *Store) QueryAssignedForParticipant(
	ctx context.Context,
	pool personallinks.PoolID,
	participantID string,
) ([]personallinks.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM personal_links
		WHERE participant_id = $1 AND account_survey_id = $2
		ORDER BY expires ASC, url ASC`

	return s.selectLinks(ctx, query, participantID, pool.String())
}

// TryAssign gives the link to participantID with a conditional update that
// only matches while participant_id is still null.
func (s *Store) TryAssign(ctx context.Context, pool personallinks.PoolID, url, participantID string) (bool, error) {
	const query = `
		UPDATE personal_links
		SET status = $1, participant_id = $2, assigned_at = NOW()
		WHERE account_survey_id = $3 AND url = $4 AND participant_id IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, string(personallinks.StatusAssigned), participantID, pool.String(), url)
	err = execRequireRows(result, err, errNotAssigned)
	if errors.Is(err, errNotAssigned) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("assign link: %w", err)
	}
	return true, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) selectLinks(ctx context.Context, query string, args ...any) ([]personallinks.Link, error) {
	var rows []linkRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}

	links := make([]personallinks.Link, 0, len(rows))
	for _, r := range rows {
		l, err := r.toLink()
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(details)
}
