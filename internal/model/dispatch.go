package model

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryMethod string

const (
	DeliveryEmail    DeliveryMethod = "email"
	DeliverySMS      DeliveryMethod = "sms"
	DeliveryWhatsApp DeliveryMethod = "whatsapp"
	DeliveryInPerson DeliveryMethod = "in_person"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
)

// ReportDispatch is one delivery attempt of a signed report. Dispatch
// records are append-only children of their report; multiple attempts per
// report may exist.
type ReportDispatch struct {
	Base
	ReportID    uuid.UUID      `db:"report_id" json:"report_id"`
	PatientID   uuid.UUID      `db:"patient_id" json:"patient_id"`
	Method      DeliveryMethod `db:"delivery_method" json:"delivery_method"`
	Status      DeliveryStatus `db:"delivery_status" json:"delivery_status"`
	Recipient   string         `db:"recipient" json:"recipient"`
	Error       *string        `db:"error" json:"error,omitempty"`
	AttemptedAt *time.Time     `db:"attempted_at" json:"attempted_at,omitempty"`
	DeliveredAt *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
}

type UpdateDispatchStatusRequest struct {
	Status DeliveryStatus `json:"status" binding:"required,oneof=sent failed delivered"`
	Error  string         `json:"error" binding:"max=1000"`
}
