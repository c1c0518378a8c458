package model

import (
	"time"

	"github.com/google/uuid"
)

type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusAccepted  ReferralStatus = "accepted"
	ReferralStatusRejected  ReferralStatus = "rejected"
	ReferralStatusCompleted ReferralStatus = "completed"
)

func (s ReferralStatus) Terminal() bool {
	return s == ReferralStatusRejected || s == ReferralStatusCompleted
}

type ReferralCommand string

const (
	ReferralCmdRespond  ReferralCommand = "respond to"
	ReferralCmdComplete ReferralCommand = "complete"
)

var referralTransitions = map[ReferralCommand][]ReferralStatus{
	ReferralCmdRespond:  {ReferralStatusPending},
	ReferralCmdComplete: {ReferralStatusAccepted},
}

func (s ReferralStatus) Allows(cmd ReferralCommand) bool {
	for _, from := range referralTransitions[cmd] {
		if s == from {
			return true
		}
	}
	return false
}

func (cmd ReferralCommand) AllowedStates() []ReferralStatus {
	return referralTransitions[cmd]
}

// Referral represents a request to transfer a patient's care to another
// physician.
type Referral struct {
	Base
	PatientID             uuid.UUID      `db:"patient_id" json:"patient_id"`
	ReferringPhysicianID  uuid.UUID      `db:"referring_physician_id" json:"referring_physician_id"`
	ReferredToPhysicianID uuid.UUID      `db:"referred_to_physician_id" json:"referred_to_physician_id"`
	Reason                string         `db:"reason" json:"reason"`
	Notes                 string         `db:"notes" json:"notes,omitempty"`
	Status                ReferralStatus `db:"status" json:"status"`
	ReferralDate          time.Time      `db:"referral_date" json:"referral_date"`
	ResponseDate          *time.Time     `db:"response_date" json:"response_date,omitempty"`
}

type CreateReferralRequest struct {
	PatientID             uuid.UUID `json:"patient_id" binding:"required"`
	ReferringPhysicianID  uuid.UUID `json:"referring_physician_id" binding:"required"`
	ReferredToPhysicianID uuid.UUID `json:"referred_to_physician_id" binding:"required"`
	Reason                string    `json:"reason" binding:"required"`
	Notes                 string    `json:"notes" binding:"max=2000"`
}

type RespondReferralRequest struct {
	Decision ReferralStatus `json:"decision" binding:"required,oneof=accepted rejected"`
	Notes    string         `json:"notes" binding:"max=2000"`
}

type ReferralFilters struct {
	PatientID             uuid.UUID
	ReferringPhysicianID  uuid.UUID
	ReferredToPhysicianID uuid.UUID
	Status                ReferralStatus
}
