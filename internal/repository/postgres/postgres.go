package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/clinicore/encounter-api/internal/repository"
)

type encounterRepository struct {
	db *sqlx.DB
}

type referralRepository struct {
	db *sqlx.DB
}

type reportRepository struct {
	db *sqlx.DB
}

type dispatchRepository struct {
	db *sqlx.DB
}

type directoryRepository struct {
	db *sqlx.DB
}

type auditRepository struct {
	db *sqlx.DB
}

func NewEncounterRepository(db *sqlx.DB) repository.EncounterRepository {
	return &encounterRepository{db: db}
}

func NewReferralRepository(db *sqlx.DB) repository.ReferralRepository {
	return &referralRepository{db: db}
}

func NewReportRepository(db *sqlx.DB) repository.ReportRepository {
	return &reportRepository{db: db}
}

func NewDispatchRepository(db *sqlx.DB) repository.DispatchRepository {
	return &dispatchRepository{db: db}
}

func NewDirectoryRepository(db *sqlx.DB) repository.DirectoryRepository {
	return &directoryRepository{db: db}
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{db: db}
}
