package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores calls in the intake_calls table.
type PostgresRepository struct {
	pool rowQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("calls: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q rowQuerier) *PostgresRepository {
	if q == nil {
		panic("calls: querier required")
	}
	return &PostgresRepository{pool: q}
}

const selectCallColumns = `
	SELECT id, session_ref, practice_area, call_status, current_state, consent_to_book,
	       COALESCE(caller_name, ''), COALESCE(caller_email, ''), COALESCE(caller_phone, ''),
	       answers, history, created_at, updated_at
	FROM intake_calls`

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, call *Call) error {
	answers, history, err := encodeJSONColumns(call)
	if err != nil {
		return err
	}
	name, email, phone := callerColumns(call.Caller)
	query := `
		INSERT INTO intake_calls (id, session_ref, practice_area, call_status, current_state, consent_to_book,
		                          caller_name, caller_email, caller_phone, answers, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.pool.Exec(ctx, query,
		call.ID,
		call.SessionRef,
		string(call.PracticeArea),
		string(call.Status),
		string(call.State),
		call.ConsentToBook,
		name,
		email,
		phone,
		answers,
		history,
		call.CreatedAt,
		call.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSession
		}
		return fmt.Errorf("calls: insert failed: %w", err)
	}
	return nil
}

// Get fetches a call by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Call, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectCallColumns+` WHERE id = $1`, id))
}

// GetBySessionRef fetches a call by its external session reference.
func (r *PostgresRepository) GetBySessionRef(ctx context.Context, sessionRef string) (*Call, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectCallColumns+` WHERE session_ref = $1`, sessionRef))
}

// List returns all calls, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Call, error) {
	rows, err := r.pool.Query(ctx, selectCallColumns+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("calls: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

// Update persists the mutable columns. consent_to_book is OR-merged so it can
// only move from false to true. The WHERE clause refuses writes to terminated
// calls and writes that would move status or intake state backward, so a
// stale copy from another instance fails with ErrStaleUpdate.
func (r *PostgresRepository) Update(ctx context.Context, call *Call) error {
	answers, history, err := encodeJSONColumns(call)
	if err != nil {
		return err
	}
	name, email, phone := callerColumns(call.Caller)
	query := `
		UPDATE intake_calls
		SET practice_area = $2,
		    call_status = $3,
		    current_state = $4,
		    consent_to_book = consent_to_book OR $5,
		    caller_name = COALESCE(caller_name, $6),
		    caller_email = COALESCE(caller_email, $7),
		    caller_phone = COALESCE(caller_phone, $8),
		    answers = $9,
		    history = $10,
		    updated_at = $11
		WHERE id = $1
		  AND call_status NOT IN ('completed', 'failed')
		  AND array_position(ARRAY['ringing', 'in_progress'], call_status) - 1 <= $12
		  AND array_position(ARRAY['greeting', 'collecting_info', 'consent', 'scheduling', 'closing', 'done'], current_state) - 1 <= $13
	`
	ct, err := r.pool.Exec(ctx, query,
		call.ID,
		string(call.PracticeArea),
		string(call.Status),
		string(call.State),
		call.ConsentToBook,
		name,
		email,
		phone,
		answers,
		history,
		call.UpdatedAt,
		call.Status.Rank(),
		call.State.Rank(),
	)
	if err != nil {
		return fmt.Errorf("calls: update failed: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM intake_calls WHERE id = $1)`, call.ID).Scan(&exists); err != nil {
		return fmt.Errorf("calls: update check failed: %w", err)
	}
	if !exists {
		return ErrCallNotFound
	}
	return fmt.Errorf("calls: update %s (%s/%s): %w", call.ID, call.Status, call.State, ErrStaleUpdate)
}

func (r *PostgresRepository) scanOne(row pgx.Row) (*Call, error) {
	call, err := scanCall(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, err
	}
	return call, nil
}

func scanCall(row pgx.Row) (*Call, error) {
	var (
		call                     Call
		area, status, state      string
		name, email, phone       string
		answersJSON, historyJSON []byte
	)
	if err := row.Scan(
		&call.ID,
		&call.SessionRef,
		&area,
		&status,
		&state,
		&call.ConsentToBook,
		&name,
		&email,
		&phone,
		&answersJSON,
		&historyJSON,
		&call.CreatedAt,
		&call.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("calls: scan failed: %w", err)
	}
	call.PracticeArea = PracticeArea(area)
	call.Status = Status(status)
	call.State = IntakeState(state)
	if name != "" || email != "" || phone != "" {
		call.Caller = &Caller{Name: name, Email: email, Phone: phone}
	}
	if len(answersJSON) > 0 {
		if err := json.Unmarshal(answersJSON, &call.Answers); err != nil {
			return nil, fmt.Errorf("calls: decode answers: %w", err)
		}
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &call.History); err != nil {
			return nil, fmt.Errorf("calls: decode history: %w", err)
		}
	}
	return &call, nil
}

func encodeJSONColumns(call *Call) ([]byte, []byte, error) {
	answers := call.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, nil, fmt.Errorf("calls: encode answers: %w", err)
	}
	history := call.History
	if history == nil {
		history = []Transition{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, nil, fmt.Errorf("calls: encode history: %w", err)
	}
	return answersJSON, historyJSON, nil
}

func callerColumns(c *Caller) (name, email, phone *string) {
	if c == nil {
		return nil, nil, nil
	}
	return &c.Name, &c.Email, &c.Phone
}
