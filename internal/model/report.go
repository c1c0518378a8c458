package model

import (
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	ReportStatusDraft     ReportStatus = "draft"
	ReportStatusFinalized ReportStatus = "finalized"
	ReportStatusSigned    ReportStatus = "signed"
	ReportStatusSent      ReportStatus = "sent"
)

type ReportCommand string

const (
	ReportCmdEdit     ReportCommand = "edit"
	ReportCmdFinalize ReportCommand = "finalize"
	ReportCmdSign     ReportCommand = "sign"
	ReportCmdSend     ReportCommand = "send"
	ReportCmdDelete   ReportCommand = "delete"
)

// reportTransitions encodes the strictly forward draft -> finalized ->
// signed -> sent lifecycle. No skipping, no reverse transitions. Send is
// also accepted on an already-sent report: it appends another dispatch
// attempt and leaves the status alone.
var reportTransitions = map[ReportCommand][]ReportStatus{
	ReportCmdEdit:     {ReportStatusDraft, ReportStatusFinalized},
	ReportCmdFinalize: {ReportStatusDraft},
	ReportCmdSign:     {ReportStatusFinalized},
	ReportCmdSend:     {ReportStatusSigned, ReportStatusSent},
	ReportCmdDelete:   {ReportStatusDraft},
}

func (s ReportStatus) Allows(cmd ReportCommand) bool {
	for _, from := range reportTransitions[cmd] {
		if s == from {
			return true
		}
	}
	return false
}

func (cmd ReportCommand) AllowedStates() []ReportStatus {
	return reportTransitions[cmd]
}

const (
	MinReportTitleLen   = 5
	MaxReportTitleLen   = 200
	MinReportContentLen = 50
	MaxReportContentLen = 10000
)

// MedicalReport is a clinical document with a forward-only lifecycle ending
// in digital signature and dispatch.
type MedicalReport struct {
	Base
	ReportNumber   string       `db:"report_number" json:"report_number"`
	SequenceNumber int64        `db:"sequence_number" json:"sequence_number"`
	PatientID      uuid.UUID    `db:"patient_id" json:"patient_id"`
	PhysicianID    uuid.UUID    `db:"physician_id" json:"physician_id"`
	EncounterID    *uuid.UUID   `db:"encounter_id" json:"encounter_id,omitempty"`
	TemplateID     *uuid.UUID   `db:"template_id" json:"template_id,omitempty"`
	Title          string       `db:"title" json:"title"`
	Type           string       `db:"report_type" json:"report_type"`
	Content        string       `db:"content" json:"content"`
	Observations   string       `db:"observations" json:"observations,omitempty"`
	Anamnesis      string       `db:"anamnesis" json:"anamnesis,omitempty"`
	Status         ReportStatus `db:"status" json:"status"`
	IssueDate      time.Time    `db:"issue_date" json:"issue_date"`
}

// ReportSignature is the digital signature record for a signed report.
// One per report, never reassigned.
type ReportSignature struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ReportID      uuid.UUID `db:"report_id" json:"report_id"`
	PhysicianID   uuid.UUID `db:"physician_id" json:"physician_id"`
	Valid         bool      `db:"valid" json:"valid"`
	SignatureHash string    `db:"signature_hash" json:"signature_hash"`
	Certificate   []byte    `db:"certificate" json:"-"`
	SignatureDate time.Time `db:"signature_date" json:"signature_date"`
}

type CreateReportRequest struct {
	PatientID    uuid.UUID  `json:"patient_id" binding:"required"`
	PhysicianID  uuid.UUID  `json:"physician_id" binding:"required"`
	EncounterID  *uuid.UUID `json:"encounter_id"`
	TemplateID   *uuid.UUID `json:"template_id"`
	Title        string     `json:"title" binding:"required,min=5,max=200"`
	Type         string     `json:"report_type" binding:"required"`
	Content      string     `json:"content" binding:"required,min=50,max=10000"`
	Observations string     `json:"observations" binding:"max=5000"`
	Anamnesis    string     `json:"anamnesis" binding:"max=5000"`
}

type EditReportRequest struct {
	Title        string `json:"title" binding:"required,min=5,max=200"`
	Type         string `json:"report_type" binding:"required"`
	Content      string `json:"content" binding:"required,min=50,max=10000"`
	Observations string `json:"observations" binding:"max=5000"`
	Anamnesis    string `json:"anamnesis" binding:"max=5000"`
}

type SignReportRequest struct {
	PhysicianID uuid.UUID `json:"physician_id" binding:"required"`
	Certificate string    `json:"certificate" binding:"required"`
}

type SendReportRequest struct {
	Method    DeliveryMethod `json:"delivery_method" binding:"required,oneof=email sms whatsapp in_person"`
	Recipient string         `json:"recipient" binding:"required"`
}

type ReportFilters struct {
	PatientID   uuid.UUID
	PhysicianID uuid.UUID
	Status      ReportStatus
	Type        string
}
