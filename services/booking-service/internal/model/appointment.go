package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	ID           string     `json:"id"`
	PatientID    string     `json:"patientId"`
	ProviderID   string     `json:"providerId"`
	StartTime    time.Time  `json:"startDateTime"`
	EndTime      time.Time  `json:"endDateTime"`
	Location     string     `json:"location,omitempty"`
	Room         string     `json:"room,omitempty"`
	Status       string     `json:"status"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	CancelReason string     `json:"cancellationReason,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// AppointmentFilter narrows a lookup. Zero fields are ignored; the period
// matches appointments whose [start, end) intersects [PeriodStart, PeriodEnd).
type AppointmentFilter struct {
	ProviderID       string
	PatientID        string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	IncludeCancelled bool
	Limit            int
}

func (a *Appointment) Normalize() {
	a.PatientID = strings.TrimSpace(a.PatientID)
	a.ProviderID = strings.TrimSpace(a.ProviderID)
	a.Location = strings.TrimSpace(a.Location)
	a.Room = strings.TrimSpace(a.Room)
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
}

func (a *Appointment) Validate() error {
	if a.PatientID == "" || a.ProviderID == "" {
		return fmt.Errorf("%w: patientId and providerId are required", ErrInvalid)
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() {
		return fmt.Errorf("%w: startDateTime and endDateTime are required", ErrInvalid)
	}
	if !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("%w: endDateTime must be after startDateTime", ErrInvalid)
	}
	return nil
}
