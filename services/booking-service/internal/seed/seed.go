package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/booking"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML document loaded by the seed command.
type Fixture struct {
	Providers    []model.Provider `yaml:"providers"`
	Patients     []model.Patient  `yaml:"patients"`
	Appointments []Appointment    `yaml:"appointments"`
}

// Appointment references a provider and patient by id. Times are RFC 3339.
type Appointment struct {
	ProviderID string `yaml:"providerId"`
	PatientID  string `yaml:"patientId"`
	Start      string `yaml:"startDateTime"`
	End        string `yaml:"endDateTime"`
	Location   string `yaml:"location,omitempty"`
	Room       string `yaml:"room,omitempty"`
}

func (a Appointment) request() (booking.Request, error) {
	start, err := time.Parse(time.RFC3339, a.Start)
	if err != nil {
		return booking.Request{}, fmt.Errorf("%w: startDateTime %q", model.ErrInvalid, a.Start)
	}
	end, err := time.Parse(time.RFC3339, a.End)
	if err != nil {
		return booking.Request{}, fmt.Errorf("%w: endDateTime %q", model.ErrInvalid, a.End)
	}
	return booking.Request{
		Request: availability.Request{
			ProviderID: a.ProviderID,
			PatientID:  a.PatientID,
			Start:      start,
			End:        end,
		},
		Location: a.Location,
		Room:     a.Room,
	}, nil
}

func Load(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode seed fixture: %w", err)
	}
	return &f, nil
}

func LoadFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Load(file)
}

type ProviderCreator interface {
	Create(ctx context.Context, p *model.Provider) error
}

type PatientCreator interface {
	Create(ctx context.Context, p *model.Patient) error
}

type Booker interface {
	Book(ctx context.Context, req booking.Request) (booking.Outcome, error)
}

// Result counts what a seed run created and skipped.
type Result struct {
	Providers    int
	Patients     int
	Appointments int
	Skipped      int
}

// Seeder writes a fixture. Records that already exist and appointments the
// schedule rejects are skipped, so a fixture can be applied repeatedly.
type Seeder struct {
	providers ProviderCreator
	patients  PatientCreator
	booker    Booker
	logger    *slog.Logger
}

func NewSeeder(providers ProviderCreator, patients PatientCreator, booker Booker, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{providers: providers, patients: patients, booker: booker, logger: logger}
}

func (s *Seeder) Apply(ctx context.Context, f *Fixture) (Result, error) {
	var res Result
	for i := range f.Providers {
		p := f.Providers[i]
		err := s.providers.Create(ctx, &p)
		switch {
		case errors.Is(err, model.ErrConflict):
			s.logger.Info("seed provider exists", "user_name", p.UserName)
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("seed provider %s: %w", p.UserName, err)
		default:
			res.Providers++
		}
	}
	for i := range f.Patients {
		p := f.Patients[i]
		err := s.patients.Create(ctx, &p)
		switch {
		case errors.Is(err, model.ErrConflict):
			s.logger.Info("seed patient exists", "user_name", p.UserName)
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("seed patient %s: %w", p.UserName, err)
		default:
			res.Patients++
		}
	}
	for i, a := range f.Appointments {
		req, err := a.request()
		if err != nil {
			return res, fmt.Errorf("seed appointment %d: %w", i, err)
		}
		out, err := s.booker.Book(ctx, req)
		if err != nil {
			return res, fmt.Errorf("seed appointment %d: %w", i, err)
		}
		if !out.Verdict.Accepted {
			s.logger.Info("seed appointment rejected", "index", i, "provider_id", a.ProviderID, "reason", string(out.Verdict.Reason))
			res.Skipped++
			continue
		}
		res.Appointments++
	}
	return res, nil
}
