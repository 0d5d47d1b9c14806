package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinicsched/clinicsched/libs/db"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type AppointmentRepository struct {
	db db.Querier
}

func NewAppointmentRepository(q db.Querier) *AppointmentRepository {
	return &AppointmentRepository{db: q}
}

// WithTx returns a repository whose statements run inside tx.
func (r *AppointmentRepository) WithTx(tx pgx.Tx) *AppointmentRepository {
	return &AppointmentRepository{db: tx}
}

const appointmentColumns = `
	id::text, patient_id::text, provider_id::text, start_time, end_time,
	COALESCE(location, ''), COALESCE(room, ''), status, cancelled_at,
	COALESCE(cancellation_reason, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt        model.Appointment
		cancelledAt *time.Time
	)
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.ProviderID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Location,
		&appt.Room,
		&appt.Status,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

// LockProvider takes a transaction-scoped advisory lock for the provider so
// concurrent validate-then-create sequences for it run one at a time.
func (r *AppointmentRepository) LockProvider(ctx context.Context, providerID string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, providerID)
	return err
}

// Create inserts a booked appointment. Hitting the overlap exclusion
// constraint is reported as-is; callers test it with IsConflict.
func (r *AppointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	if appt.Status == "" {
		appt.Status = model.StatusBooked
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, provider_id, start_time, end_time, location, room, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		RETURNING id::text, created_at, updated_at
	`, appt.PatientID, appt.ProviderID, appt.StartTime, appt.EndTime, appt.Location, appt.Room, appt.Status,
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if IsConflict(err) {
			return err
		}
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown patient %s or provider %s", model.ErrInvalid, appt.PatientID, appt.ProviderID)
		}
		return err
	}
	return nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *AppointmentRepository) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return r.get(ctx, id, true)
}

func (r *AppointmentRepository) get(ctx context.Context, id string, forUpdate bool) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, notFound("appointment", id)
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Appointment{}, notFound("appointment", id)
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

// FindAppointments satisfies availability.AppointmentStore.
func (r *AppointmentRepository) FindAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ProviderID != "" {
		if !validID(f.ProviderID) {
			return nil, nil
		}
		add("provider_id = $%d", f.ProviderID)
	}
	if f.PatientID != "" {
		if !validID(f.PatientID) {
			return nil, nil
		}
		add("patient_id = $%d", f.PatientID)
	}
	if !f.IncludeCancelled {
		conds = append(conds, "status = 'booked'")
	}
	if !f.PeriodStart.IsZero() {
		add("end_time > $%d", f.PeriodStart)
	}
	if !f.PeriodEnd.IsZero() {
		add("start_time < $%d", f.PeriodEnd)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY start_time ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// Reschedule moves a booked appointment and updates its location details.
func (r *AppointmentRepository) Reschedule(ctx context.Context, appt *model.Appointment) error {
	err := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
			end_time = $3,
			location = NULLIF($4, ''),
			room = NULLIF($5, ''),
			updated_at = now()
		WHERE id = $1 AND status = 'booked'
		RETURNING updated_at
	`, appt.ID, appt.StartTime, appt.EndTime, appt.Location, appt.Room).Scan(&appt.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return notFound("appointment", appt.ID)
		}
		return err
	}
	return nil
}

func (r *AppointmentRepository) Cancel(ctx context.Context, id, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = NULLIF($2, ''),
			updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at
	`, id, reason).Scan(&cancelledAt)
	if err != nil {
		if db.IsNoRows(err) {
			return time.Time{}, notFound("appointment", id)
		}
		return time.Time{}, err
	}
	return cancelledAt, nil
}
