package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clinicsched/clinicsched/libs/db"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ProviderRepository struct {
	db db.Querier
}

func NewProviderRepository(q db.Querier) *ProviderRepository {
	return &ProviderRepository{db: q}
}

// WithTx returns a repository whose statements run inside tx.
func (r *ProviderRepository) WithTx(tx pgx.Tx) *ProviderRepository {
	return &ProviderRepository{db: tx}
}

const providerColumns = `
	id::text, user_name, first_name, COALESCE(middle_name, ''), last_name, COALESCE(degree, ''),
	COALESCE(email, ''), COALESCE(phone, ''), address, is_accepting_new_patient, languages_spoken,
	COALESCE(npi, ''), education, COALESCE(biography, ''), affiliation, time_zone,
	regular_shift, scheduled_shifts, blocked_shifts, created_at, updated_at`

// providerDocs holds the JSONB columns of a provider row.
type providerDocs struct {
	address, languages, education, affiliation []byte
	regular, scheduled, blocked                []byte
}

func encodeProviderDocs(p *model.Provider) (providerDocs, error) {
	var (
		d   providerDocs
		err error
	)
	regular := p.RegularShift
	if regular == nil {
		regular = model.WeeklyTemplate{}
	}
	scheduled := p.ScheduledShifts
	if scheduled == nil {
		scheduled = []model.ScheduledOverride{}
	}
	blocked := p.BlockedShifts
	if blocked == nil {
		blocked = []model.BlockedOverride{}
	}
	languages := p.LanguagesSpoken
	if languages == nil {
		languages = []string{}
	}
	fields := []struct {
		dst *[]byte
		src any
	}{
		{&d.address, p.Address},
		{&d.languages, languages},
		{&d.education, p.Education},
		{&d.affiliation, p.Affiliation},
		{&d.regular, regular},
		{&d.scheduled, scheduled},
		{&d.blocked, blocked},
	}
	for _, f := range fields {
		if *f.dst, err = json.Marshal(f.src); err != nil {
			return providerDocs{}, fmt.Errorf("encode provider: %w", err)
		}
	}
	return d, nil
}

func (d providerDocs) decode(p *model.Provider) error {
	fields := []struct {
		src []byte
		dst any
	}{
		{d.address, &p.Address},
		{d.languages, &p.LanguagesSpoken},
		{d.education, &p.Education},
		{d.affiliation, &p.Affiliation},
		{d.regular, &p.RegularShift},
		{d.scheduled, &p.ScheduledShifts},
		{d.blocked, &p.BlockedShifts},
	}
	for _, f := range fields {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return fmt.Errorf("decode provider %s: %w", p.ID, err)
		}
	}
	return nil
}

func scanProvider(row pgx.Row) (*model.Provider, error) {
	var (
		p model.Provider
		d providerDocs
	)
	err := row.Scan(
		&p.ID, &p.UserName, &p.FirstName, &p.MiddleName, &p.LastName, &p.Degree,
		&p.Email, &p.Phone, &d.address, &p.IsAcceptingNewPatient, &d.languages,
		&p.NPI, &d.education, &p.Biography, &d.affiliation, &p.TimeZone,
		&d.regular, &d.scheduled, &d.blocked, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := d.decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create validates and inserts p, filling ID and timestamps.
func (r *ProviderRepository) Create(ctx context.Context, p *model.Provider) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	d, err := encodeProviderDocs(p)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO providers
			(id, user_name, first_name, middle_name, last_name, degree, email, phone, address,
			 is_accepting_new_patient, languages_spoken, npi, education, biography, affiliation,
			 time_zone, regular_shift, scheduled_shifts, blocked_shifts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at
	`, p.ID, p.UserName, p.FirstName, p.MiddleName, p.LastName, p.Degree, p.Email, p.Phone, d.address,
		p.IsAcceptingNewPatient, d.languages, p.NPI, d.education, p.Biography, d.affiliation,
		p.TimeZone, d.regular, d.scheduled, d.blocked).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return classify("create provider", err)
	}
	return nil
}

// GetProvider satisfies availability.ProviderStore.
func (r *ProviderRepository) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	if !validID(id) {
		return nil, notFound("provider", id)
	}
	p, err := scanProvider(r.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, notFound("provider", id)
		}
		return nil, err
	}
	return p, nil
}

func (r *ProviderRepository) List(ctx context.Context, limit, offset int) ([]*model.Provider, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		ORDER BY last_name, first_name, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Update replaces every mutable field of the provider with p.
func (r *ProviderRepository) Update(ctx context.Context, p *model.Provider) error {
	if !validID(p.ID) {
		return notFound("provider", p.ID)
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	d, err := encodeProviderDocs(p)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		UPDATE providers
		SET user_name = $2, first_name = $3, middle_name = $4, last_name = $5, degree = $6,
			email = $7, phone = $8, address = $9, is_accepting_new_patient = $10,
			languages_spoken = $11, npi = $12, education = $13, biography = $14, affiliation = $15,
			time_zone = $16, regular_shift = $17, scheduled_shifts = $18, blocked_shifts = $19,
			updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, p.ID, p.UserName, p.FirstName, p.MiddleName, p.LastName, p.Degree, p.Email, p.Phone, d.address,
		p.IsAcceptingNewPatient, d.languages, p.NPI, d.education, p.Biography, d.affiliation,
		p.TimeZone, d.regular, d.scheduled, d.blocked).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return notFound("provider", p.ID)
		}
		return classify("update provider", err)
	}
	return nil
}

func (r *ProviderRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return notFound("provider", id)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return classify("delete provider", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("provider", id)
	}
	return nil
}
