package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Patient struct {
	ID         string    `json:"id" yaml:"id,omitempty"`
	UserName   string    `json:"userName" yaml:"userName"`
	FirstName  string    `json:"firstName" yaml:"firstName"`
	MiddleName string    `json:"middleName,omitempty" yaml:"middleName,omitempty"`
	LastName   string    `json:"lastName" yaml:"lastName"`
	Gender     string    `json:"gender,omitempty" yaml:"gender,omitempty"`
	Email      string    `json:"email,omitempty" yaml:"email,omitempty"`
	Phone      string    `json:"phone,omitempty" yaml:"phone,omitempty"`
	SSN        string    `json:"ssn,omitempty" yaml:"ssn,omitempty"`
	Address    Address   `json:"address" yaml:"address,omitempty"`
	IsSmoker   bool      `json:"isSmoker" yaml:"isSmoker"`
	Birthday   string    `json:"birthday,omitempty" yaml:"birthday,omitempty"`
	CreatedAt  time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time `json:"updatedAt" yaml:"-"`
}

func (p *Patient) Normalize() {
	p.UserName = strings.TrimSpace(p.UserName)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Gender = strings.ToUpper(strings.TrimSpace(p.Gender))
}

func (p *Patient) Validate() error {
	var errs []error
	if p.UserName == "" || p.FirstName == "" || p.LastName == "" {
		errs = append(errs, fmt.Errorf("%w: userName, firstName and lastName are required", ErrInvalid))
	}
	if p.Gender != "" && p.Gender != "M" && p.Gender != "F" {
		errs = append(errs, fmt.Errorf("%w: gender must be M or F", ErrInvalid))
	}
	if p.Birthday != "" {
		if _, _, _, err := CalendarDate(p.Birthday).Civil(); err != nil {
			errs = append(errs, fmt.Errorf("birthday: %w", err))
		}
	}
	return errors.Join(errs...)
}

// MaskedSSN keeps only the last four digits.
func (p *Patient) MaskedSSN() string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, p.SSN)
	if len(digits) < 4 {
		return ""
	}
	return "***-**-" + digits[len(digits)-4:]
}
