package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Directory entities are consumed read-only from the patient/physician/
// service catalog; their CRUD lives outside this service.

type Physician struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SpecialtyID uuid.UUID `db:"specialty_id" json:"specialty_id"`
	Active      bool      `db:"active" json:"active"`
}

type Patient struct {
	ID uuid.UUID `db:"id" json:"id"`
}

// CatalogService is a billable service from the catalog.
type CatalogService struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	SpecialtyID uuid.UUID       `db:"specialty_id" json:"specialty_id"`
	BaseAmount  decimal.Decimal `db:"base_amount" json:"base_amount"`
	Currency    string          `db:"currency" json:"currency"`
	Active      bool            `db:"active" json:"active"`
}
