package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clinicsched/clinicsched/libs/db"
	"github.com/clinicsched/clinicsched/libs/phi"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ssnField = "patients.ssn"

// PatientRepository stores patients with the SSN sealed by a phi.Encryptor.
type PatientRepository struct {
	db  db.Querier
	enc *phi.Encryptor
}

func NewPatientRepository(q db.Querier, enc *phi.Encryptor) *PatientRepository {
	return &PatientRepository{db: q, enc: enc}
}

const patientColumns = `
	id::text, user_name, first_name, COALESCE(middle_name, ''), last_name, COALESCE(gender, ''),
	COALESCE(email, ''), COALESCE(phone, ''), COALESCE(ssn_encrypted, ''), address, is_smoker,
	COALESCE(to_char(birthday, 'YYYY-MM-DD'), ''), created_at, updated_at`

func (r *PatientRepository) scan(row pgx.Row) (*model.Patient, error) {
	var (
		p          model.Patient
		sealedSSN  string
		rawAddress []byte
	)
	if err := row.Scan(
		&p.ID, &p.UserName, &p.FirstName, &p.MiddleName, &p.LastName, &p.Gender,
		&p.Email, &p.Phone, &sealedSSN, &rawAddress, &p.IsSmoker, &p.Birthday,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(rawAddress) > 0 {
		if err := json.Unmarshal(rawAddress, &p.Address); err != nil {
			return nil, fmt.Errorf("decode patient %s address: %w", p.ID, err)
		}
	}
	ssn, err := r.enc.Open(ssnField, sealedSSN)
	if err != nil {
		return nil, fmt.Errorf("patient %s: %w", p.ID, err)
	}
	p.SSN = ssn
	return &p, nil
}

func (r *PatientRepository) encode(p *model.Patient) (sealedSSN string, address []byte, err error) {
	sealedSSN, err = r.enc.Seal(ssnField, p.SSN)
	if err != nil {
		return "", nil, err
	}
	address, err = json.Marshal(p.Address)
	if err != nil {
		return "", nil, fmt.Errorf("encode patient address: %w", err)
	}
	return sealedSSN, address, nil
}

func (r *PatientRepository) Create(ctx context.Context, p *model.Patient) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	sealedSSN, address, err := r.encode(p)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO patients
			(id, user_name, first_name, middle_name, last_name, gender, email, phone,
			 ssn_encrypted, address, is_smoker, birthday)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, NULLIF($12::text, '')::date)
		RETURNING created_at, updated_at
	`, p.ID, p.UserName, p.FirstName, p.MiddleName, p.LastName, p.Gender, p.Email, p.Phone,
		sealedSSN, address, p.IsSmoker, p.Birthday).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return classify("create patient", err)
	}
	return nil
}

func (r *PatientRepository) Get(ctx context.Context, id string) (*model.Patient, error) {
	if !validID(id) {
		return nil, notFound("patient", id)
	}
	p, err := r.scan(r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, notFound("patient", id)
		}
		return nil, err
	}
	return p, nil
}

func (r *PatientRepository) List(ctx context.Context, limit, offset int) ([]*model.Patient, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		ORDER BY last_name, first_name, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Patient
	for rows.Next() {
		p, err := r.scan(rows)
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

func (r *PatientRepository) Update(ctx context.Context, p *model.Patient) error {
	if !validID(p.ID) {
		return notFound("patient", p.ID)
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	sealedSSN, address, err := r.encode(p)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		UPDATE patients
		SET user_name = $2, first_name = $3, middle_name = $4, last_name = $5, gender = NULLIF($6, ''),
			email = $7, phone = $8, ssn_encrypted = $9, address = $10, is_smoker = $11,
			birthday = NULLIF($12::text, '')::date, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, p.ID, p.UserName, p.FirstName, p.MiddleName, p.LastName, p.Gender, p.Email, p.Phone,
		sealedSSN, address, p.IsSmoker, p.Birthday).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return notFound("patient", p.ID)
		}
		return classify("update patient", err)
	}
	return nil
}

func (r *PatientRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return notFound("patient", id)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return classify("delete patient", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("patient", id)
	}
	return nil
}
