package model

import (
	"time"

	"github.com/google/uuid"
)

type EncounterStatus string

const (
	EncounterStatusScheduled     EncounterStatus = "scheduled"
	EncounterStatusToBeScheduled EncounterStatus = "to_be_scheduled"
	EncounterStatusRescheduled   EncounterStatus = "rescheduled"
	EncounterStatusCancelled     EncounterStatus = "cancelled"
	EncounterStatusCompleted     EncounterStatus = "completed"
	EncounterStatusNoShow        EncounterStatus = "no_show"
)

// Terminal reports whether no further transitions are accepted.
func (s EncounterStatus) Terminal() bool {
	switch s {
	case EncounterStatusCancelled, EncounterStatusCompleted, EncounterStatusNoShow:
		return true
	}
	return false
}

type EncounterType string

const (
	EncounterTypeFirstVisit EncounterType = "first_visit"
	EncounterTypeFollowUp   EncounterType = "follow_up"
	EncounterTypeControl    EncounterType = "control"
	EncounterTypeUrgent     EncounterType = "urgent"
)

type EncounterPriority string

const (
	PriorityLow    EncounterPriority = "low"
	PriorityNormal EncounterPriority = "normal"
	PriorityHigh   EncounterPriority = "high"
	PriorityUrgent EncounterPriority = "urgent"
)

type ReminderMethod string

const (
	ReminderEmail    ReminderMethod = "email"
	ReminderSMS      ReminderMethod = "sms"
	ReminderCall     ReminderMethod = "call"
	ReminderWhatsApp ReminderMethod = "whatsapp"
)

// EncounterCommand names a state-machine command on an encounter.
type EncounterCommand string

const (
	EncounterCmdSchedule     EncounterCommand = "schedule"
	EncounterCmdReschedule   EncounterCommand = "reschedule"
	EncounterCmdCancel       EncounterCommand = "cancel"
	EncounterCmdMarkNoShow   EncounterCommand = "mark no-show"
	EncounterCmdFinalize     EncounterCommand = "finalize"
	EncounterCmdUpdateNotes  EncounterCommand = "update"
	EncounterCmdMarkReminder EncounterCommand = "mark reminder on"
)

// encounterTransitions is the single source of truth for command legality.
// Legality is checked here, never re-derived at call sites.
var encounterTransitions = map[EncounterCommand][]EncounterStatus{
	EncounterCmdSchedule:     {EncounterStatusToBeScheduled},
	EncounterCmdReschedule:   {EncounterStatusScheduled, EncounterStatusRescheduled},
	EncounterCmdCancel:       {EncounterStatusScheduled, EncounterStatusRescheduled, EncounterStatusToBeScheduled},
	EncounterCmdMarkNoShow:   {EncounterStatusScheduled, EncounterStatusRescheduled},
	EncounterCmdFinalize:     {EncounterStatusScheduled, EncounterStatusRescheduled},
	EncounterCmdUpdateNotes:  {EncounterStatusScheduled, EncounterStatusRescheduled, EncounterStatusToBeScheduled},
	EncounterCmdMarkReminder: {EncounterStatusScheduled, EncounterStatusRescheduled},
}

// Allows reports whether cmd is legal from status s.
func (s EncounterStatus) Allows(cmd EncounterCommand) bool {
	for _, from := range encounterTransitions[cmd] {
		if s == from {
			return true
		}
	}
	return false
}

// AllowedStates returns the source states cmd is legal from. Used by the
// repository layer to build status-guarded updates.
func (cmd EncounterCommand) AllowedStates() []EncounterStatus {
	return encounterTransitions[cmd]
}

const (
	MinEncounterDurationMinutes = 15
	MaxEncounterDurationMinutes = 120
)

// Encounter represents one scheduled clinical visit.
type Encounter struct {
	Base
	PatientID            uuid.UUID         `db:"patient_id" json:"patient_id"`
	PhysicianID          uuid.UUID         `db:"physician_id" json:"physician_id"`
	SpecialtyID          uuid.UUID         `db:"specialty_id" json:"specialty_id"`
	ReferringPhysicianID *uuid.UUID        `db:"referring_physician_id" json:"referring_physician_id,omitempty"`
	ReferralID           *uuid.UUID        `db:"referral_id" json:"referral_id,omitempty"`
	ScheduledDate        *time.Time        `db:"scheduled_date" json:"scheduled_date,omitempty"`
	ScheduledTime        *string           `db:"scheduled_time" json:"scheduled_time,omitempty"`
	DurationMinutes      int               `db:"duration_minutes" json:"duration_minutes"`
	Type                 EncounterType     `db:"encounter_type" json:"encounter_type"`
	Priority             EncounterPriority `db:"priority" json:"priority"`
	Status               EncounterStatus   `db:"status" json:"status"`
	Reason               string            `db:"reason" json:"reason"`
	PreliminaryDiagnosis string            `db:"preliminary_diagnosis" json:"preliminary_diagnosis,omitempty"`
	Notes                string            `db:"notes" json:"notes,omitempty"`
	InternalNotes        string            `db:"internal_notes" json:"internal_notes,omitempty"`
	CancellationReason   *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancellationDate     *time.Time        `db:"cancellation_date" json:"cancellation_date,omitempty"`
	CancelledBy          *uuid.UUID        `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CompletedAt          *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	ReminderSent         bool              `db:"reminder_sent" json:"reminder_sent"`
	ReminderDate         *time.Time        `db:"reminder_date" json:"reminder_date,omitempty"`
	ReminderMethod       *ReminderMethod   `db:"reminder_method" json:"reminder_method,omitempty"`
	CreatedBy            uuid.UUID         `db:"created_by" json:"created_by"`
	UpdatedBy            uuid.UUID         `db:"updated_by" json:"updated_by"`
}

type CreateEncounterRequest struct {
	PatientID       uuid.UUID         `json:"patient_id" binding:"required"`
	PhysicianID     uuid.UUID         `json:"physician_id" binding:"required"`
	ScheduledDate   string            `json:"scheduled_date" binding:"required,datetime=2006-01-02"`
	ScheduledTime   string            `json:"scheduled_time" binding:"required,datetime=15:04"`
	DurationMinutes int               `json:"duration_minutes" binding:"required"`
	Type            EncounterType     `json:"encounter_type" binding:"required,oneof=first_visit follow_up control urgent"`
	Priority        EncounterPriority `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	Reason          string            `json:"reason" binding:"required"`
	Notes           string            `json:"notes" binding:"max=2000"`
	InternalNotes   string            `json:"internal_notes" binding:"max=2000"`
}

type RescheduleEncounterRequest struct {
	ScheduledDate string `json:"scheduled_date" binding:"required,datetime=2006-01-02"`
	ScheduledTime string `json:"scheduled_time" binding:"required,datetime=15:04"`
}

type CancelEncounterRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type FinalizeEncounterRequest struct {
	PreliminaryDiagnosis string             `json:"preliminary_diagnosis" binding:"required"`
	Services             []ServiceLineInput `json:"services" binding:"required"`
}

type UpdateEncounterNotesRequest struct {
	Reason               *string `json:"reason"`
	PreliminaryDiagnosis *string `json:"preliminary_diagnosis"`
	Notes                *string `json:"notes"`
	InternalNotes        *string `json:"internal_notes"`
}

type MarkReminderSentRequest struct {
	Method ReminderMethod `json:"method" binding:"required,oneof=email sms call whatsapp"`
}

type CreateFromReferralRequest struct {
	ReferralID      uuid.UUID         `json:"referral_id" binding:"required"`
	Reason          string            `json:"reason"`
	Priority        EncounterPriority `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	DurationMinutes int               `json:"duration_minutes"`
}

type EncounterFilters struct {
	PatientID   uuid.UUID
	PhysicianID uuid.UUID
	Status      EncounterStatus
	StartDate   time.Time
	EndDate     time.Time
}

// FinalizedEncounter is the snapshot returned by a successful finalization:
// the completed encounter, its committed billing lines and the per-currency
// totals.
type FinalizedEncounter struct {
	Encounter *Encounter       `json:"encounter"`
	Services  []*BilledService `json:"services"`
	Totals    CurrencyTotals   `json:"totals"`
}
