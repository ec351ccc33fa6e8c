package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haseebbuilds/voice-agent/internal/calls"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in Postgres. The partial unique index
// appointments_active_slot_idx rejects a second active row for a timestamp.
type PostgresRepository struct {
	pool rowQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q rowQuerier) *PostgresRepository {
	if q == nil {
		panic("appointments: querier required")
	}
	return &PostgresRepository{pool: q}
}

const selectAppointmentColumns = `
	SELECT id, call_id, caller_name, caller_email, caller_phone, practice_area,
	       scheduled_for, booking_status, confirmation_email_sent, created_at, updated_at
	FROM appointments`

func (r *PostgresRepository) Insert(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (id, call_id, caller_name, caller_email, caller_phone, practice_area,
		                          scheduled_for, booking_status, confirmation_email_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		appt.ID,
		appt.CallID,
		appt.Caller.Name,
		appt.Caller.Email,
		appt.Caller.Phone,
		string(appt.PracticeArea),
		appt.ScheduledFor,
		string(appt.Status),
		appt.ConfirmationEmailSent,
		appt.CreatedAt,
		appt.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotConflict
		}
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, selectAppointmentColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return appt, nil
}

// List returns appointments, latest appointment time first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointmentColumns+` ORDER BY scheduled_for DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) HasActiveAt(ctx context.Context, at time.Time) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM appointments
		WHERE scheduled_for = $1 AND booking_status IN ('pending', 'confirmed')
		LIMIT 1
	`, at).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("appointments: active check failed: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) ActiveTimes(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_for FROM appointments
		WHERE scheduled_for BETWEEN $1 AND $2 AND booking_status IN ('pending', 'confirmed')
		ORDER BY scheduled_for
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: active times failed: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) TransitionStatus(ctx context.Context, id string, from, to Status) (*Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET booking_status = $3, updated_at = NOW()
		WHERE id = $1 AND booking_status = $2
		RETURNING id, call_id, caller_name, caller_email, caller_phone, practice_area,
		          scheduled_for, booking_status, confirmation_email_sent, created_at, updated_at
	`, id, string(from), string(to)))
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusChanged
}

func (r *PostgresRepository) MarkConfirmationSent(ctx context.Context, id string) (bool, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET confirmation_email_sent = TRUE, updated_at = NOW()
		WHERE id = $1 AND confirmation_email_sent = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark sent failed: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt         Appointment
		area, status string
	)
	if err := row.Scan(
		&appt.ID,
		&appt.CallID,
		&appt.Caller.Name,
		&appt.Caller.Email,
		&appt.Caller.Phone,
		&area,
		&appt.ScheduledFor,
		&status,
		&appt.ConfirmationEmailSent,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("appointments: scan failed: %w", err)
	}
	appt.PracticeArea = calls.PracticeArea(area)
	appt.Status = Status(status)
	return &appt, nil
}
