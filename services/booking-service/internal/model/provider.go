package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const DefaultTimeZone = "America/Chicago"

type Address struct {
	Line1   string `json:"addressLine1,omitempty" yaml:"addressLine1,omitempty"`
	Line2   string `json:"addressLine2,omitempty" yaml:"addressLine2,omitempty"`
	City    string `json:"city,omitempty" yaml:"city,omitempty"`
	County  string `json:"county,omitempty" yaml:"county,omitempty"`
	State   string `json:"state,omitempty" yaml:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty" yaml:"zipCode,omitempty"`
}

type Education struct {
	MedicalSchool string `json:"medicalSchool,omitempty" yaml:"medicalSchool,omitempty"`
	Residency     string `json:"residency,omitempty" yaml:"residency,omitempty"`
}

type Affiliation struct {
	MedicalGroup string `json:"medicalGroup,omitempty" yaml:"medicalGroup,omitempty"`
	Hospital     string `json:"hospital,omitempty" yaml:"hospital,omitempty"`
}

// Provider is a schedulable clinician with a timezone-anchored availability definition.
type Provider struct {
	ID                    string              `json:"id" yaml:"id,omitempty"`
	UserName              string              `json:"userName" yaml:"userName"`
	FirstName             string              `json:"firstName" yaml:"firstName"`
	MiddleName            string              `json:"middleName,omitempty" yaml:"middleName,omitempty"`
	LastName              string              `json:"lastName" yaml:"lastName"`
	Degree                string              `json:"degree,omitempty" yaml:"degree,omitempty"`
	Email                 string              `json:"email,omitempty" yaml:"email,omitempty"`
	Phone                 string              `json:"phone,omitempty" yaml:"phone,omitempty"`
	Address               Address             `json:"address" yaml:"address,omitempty"`
	IsAcceptingNewPatient bool                `json:"isAcceptingNewPatient" yaml:"isAcceptingNewPatient"`
	LanguagesSpoken       []string            `json:"languagesSpoken,omitempty" yaml:"languagesSpoken,omitempty"`
	NPI                   string              `json:"npi,omitempty" yaml:"npi,omitempty"`
	Education             Education           `json:"education" yaml:"education,omitempty"`
	Biography             string              `json:"biography,omitempty" yaml:"biography,omitempty"`
	Affiliation           Affiliation         `json:"affiliation" yaml:"affiliation,omitempty"`
	TimeZone              string              `json:"timeZone" yaml:"timeZone"`
	RegularShift          WeeklyTemplate      `json:"regularShift" yaml:"regularShift"`
	ScheduledShifts       []ScheduledOverride `json:"scheduledShifts" yaml:"scheduledShifts"`
	BlockedShifts         []BlockedOverride   `json:"blockedShifts" yaml:"blockedShifts"`
	CreatedAt             time.Time           `json:"createdAt" yaml:"-"`
	UpdatedAt             time.Time           `json:"updatedAt" yaml:"-"`
}

// Location resolves the provider's IANA zone.
func (p *Provider) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: provider %s: time zone %q: %v", ErrInvalid, p.ID, p.TimeZone, err)
	}
	return loc, nil
}

// Normalize trims identity fields and applies the default time zone.
func (p *Provider) Normalize() {
	p.UserName = strings.TrimSpace(p.UserName)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.TimeZone = strings.TrimSpace(p.TimeZone)
	if p.TimeZone == "" {
		p.TimeZone = DefaultTimeZone
	}
}

// Validate checks the fields the availability resolvers rely on.
func (p *Provider) Validate() error {
	var errs []error
	if p.UserName == "" || p.FirstName == "" || p.LastName == "" {
		errs = append(errs, fmt.Errorf("%w: userName, firstName and lastName are required", ErrInvalid))
	}
	if p.TimeZone == "" {
		errs = append(errs, fmt.Errorf("%w: timeZone is required", ErrInvalid))
	} else if _, err := time.LoadLocation(p.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("%w: unknown timeZone %q", ErrInvalid, p.TimeZone))
	}
	if err := p.RegularShift.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("regularShift: %w", err))
	}
	for i, o := range p.ScheduledShifts {
		if err := o.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scheduledShifts[%d]: %w", i, err))
		}
	}
	for i, o := range p.BlockedShifts {
		if err := o.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("blockedShifts[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
