/*
Package receivable handles revenue-side payment schedules.

PURPOSE:
  Trip and rental revenue is collected in installments. This package
  models the revenue records those schedules belong to and records
  incoming payments against them using the schedule engine's cascade
  allocator.

RECORD SHAPES:
  A revenue record is a discriminated type: Kind selects exactly one of
  the Trip or Rental payloads. Earlier generations modeled this as one
  struct with many optional sub-objects; the tagged-union shape makes an
  inconsistent record (both payloads, or neither) unrepresentable after
  Validate.

SEE ALSO:
  - payments.go: The transactional payment recording service
  - payable: The expense-side twin of this package
*/
package receivable

import (
	"errors"
	"fmt"
	"time"

	"github.com/fleetops/finance-engine/schedule"
)

// =============================================================================
// REVENUE RECORD - Tagged union over trip | rental
// =============================================================================

type Kind string

const (
	KindTrip   Kind = "trip"
	KindRental Kind = "rental"
)

var ErrInvalidRecord = errors.New("invalid revenue record")

// Record is a revenue record owning one payment schedule. Exactly one of
// Trip/Rental must be set, matching Kind.
type Record struct {
	ID        schedule.RecordID
	Kind      Kind
	Trip      *TripDetails
	Rental    *RentalDetails
	CreatedAt time.Time
}

// TripDetails describes a scheduled trip's revenue source.
type TripDetails struct {
	RouteCode     string    `json:"route_code"`
	BusPlate      string    `json:"bus_plate"`
	DepartureDate time.Time `json:"departure_date"`
}

// RentalDetails describes a bus rental contract's revenue source.
type RentalDetails struct {
	ContractNumber string    `json:"contract_number"`
	LesseeName     string    `json:"lessee_name"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

// Validate checks the tagged-union invariant: Kind is known and exactly
// the matching payload is present.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	switch r.Kind {
	case KindTrip:
		if r.Trip == nil || r.Rental != nil {
			return fmt.Errorf("%w: kind %q requires exactly the trip payload", ErrInvalidRecord, r.Kind)
		}
	case KindRental:
		if r.Rental == nil || r.Trip != nil {
			return fmt.Errorf("%w: kind %q requires exactly the rental payload", ErrInvalidRecord, r.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}
	return nil
}
