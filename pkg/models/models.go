package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
	RoleAdmin  Role = "admin"
)

// CaseStatus defines lifecycle states for a case post.
type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseInProgress CaseStatus = "in-progress"
	CaseCompleted  CaseStatus = "completed"
	CaseCancelled  CaseStatus = "cancelled"
)

// BidStatus defines lifecycle states for a bid.
type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

// DurationUnit is the unit of a bid's estimated duration.
type DurationUnit string

const (
	UnitDays   DurationUnit = "days"
	UnitWeeks  DurationUnit = "weeks"
	UnitMonths DurationUnit = "months"
)

// Availability of a lawyer for new work.
type Availability string

const (
	Available   Availability = "available"
	Busy        Availability = "busy"
	Unavailable Availability = "unavailable"
)

// Categories is the fixed set of case categories.
var Categories = []string{
	"criminal", "family", "corporate", "property", "employment",
	"immigration", "intellectual-property", "tax", "civil", "other",
}

/* =============================== Base =================================== */

// Base holds identity and timestamps shared by every entity.
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

/* =============================== Entities =============================== */

// User represents a client, lawyer or admin.
type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         Role   `gorm:"type:varchar(20);not null;index" json:"role"`
	Name         string `json:"name"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	BarNumber    string `json:"bar_number,omitempty"`
}

// CasePost is a legal case published by a client.
type CasePost struct {
	Base
	ClientID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	Title         string     `gorm:"not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	Category      string     `gorm:"type:varchar(40);not null;index" json:"category"`
	Budget        int        `gorm:"not null;default:0" json:"budget"`
	Status        CaseStatus `gorm:"type:varchar(20);default:'open';index" json:"status"`
	AcceptedBidID *uuid.UUID `gorm:"type:uuid" json:"accepted_bid_id,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Location      string     `json:"location"`

	// Derived from bids; written only by the aggregate engine.
	AverageBid int `gorm:"not null;default:0" json:"average_bid"`
	BidCount   int `gorm:"not null;default:0" json:"bid_count"`
}

// EstimatedDuration is embedded into Bid with an "estimated_" column prefix.
type EstimatedDuration struct {
	Value int          `gorm:"not null;default:1" json:"value"`
	Unit  DurationUnit `gorm:"type:varchar(10);not null;default:'days'" json:"unit"`
}

// Bid is a lawyer's offer on a case post.
type Bid struct {
	Base
	CasePostID uuid.UUID         `gorm:"type:uuid;not null;index:idx_bid_case_lawyer,unique" json:"case_post_id"`
	LawyerID   uuid.UUID         `gorm:"type:uuid;not null;index:idx_bid_case_lawyer,unique;index" json:"lawyer_id"`
	Amount     int               `gorm:"not null" json:"amount"`
	Message    string            `gorm:"type:text" json:"message"`
	Status     BidStatus         `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Duration   EstimatedDuration `gorm:"embedded;embeddedPrefix:estimated_" json:"estimated_duration"`
}

// Review is a client's rating of a lawyer for one completed case.
type Review struct {
	Base
	UserID      uuid.UUID `gorm:"type:uuid;not null;index:idx_review_triple,unique" json:"user_id"`
	LawyerID    uuid.UUID `gorm:"type:uuid;not null;index:idx_review_triple,unique;index" json:"lawyer_id"`
	CasePostID  uuid.UUID `gorm:"type:uuid;not null;index:idx_review_triple,unique" json:"case_post_id"`
	Rating      int       `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Title       string    `json:"title"`
	Comment     string    `gorm:"type:text" json:"comment"`
	IsAnonymous bool      `gorm:"not null;default:false" json:"is_anonymous"`
}

// Education is one entry of a lawyer's education history.
type Education struct {
	Institution string `json:"institution" validate:"required,max=120"`
	Degree      string `json:"degree" validate:"required,max=120"`
	Year        int    `json:"year" validate:"omitempty,gte=1900,lte=2100"`
}

// License is embedded into LawyerProfile with a "license_" column prefix.
type License struct {
	Number       string `json:"number"`
	Jurisdiction string `json:"jurisdiction"`
	Year         int    `json:"year"`
}

// LawyerProfile holds the public professional profile of a lawyer.
type LawyerProfile struct {
	Base
	UserID          uuid.UUID                      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Bio             string                         `gorm:"type:text" json:"bio"`
	Specializations datatypes.JSONSlice[string]    `json:"specializations"`
	ExperienceYears *int                           `json:"experience_years"`
	Education       datatypes.JSONSlice[Education] `json:"education"`
	License         License                        `gorm:"embedded;embeddedPrefix:license_" json:"license"`
	Languages       datatypes.JSONSlice[string]    `json:"languages"`
	HourlyRate      int                            `gorm:"not null;default:0" json:"hourly_rate"`
	ConsultationFee int                            `gorm:"not null;default:0" json:"consultation_fee"`
	Availability    Availability                   `gorm:"type:varchar(20);default:'available'" json:"availability"`

	// Derived; written only by the aggregate engine and the profile rules.
	RatingsAverage    float64 `gorm:"not null;default:0" json:"ratings_average"`
	RatingsQuantity   int     `gorm:"not null;default:0" json:"ratings_quantity"`
	CompletedCases    int     `gorm:"not null;default:0" json:"completed_cases"`
	IsProfileComplete bool    `gorm:"not null;default:false" json:"is_profile_complete"`
}

// CaseHistory is an audit log entry for important case changes.
type CaseHistory struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"case_id"`
	ActorID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"actor_id"`
	Action    string     `gorm:"type:varchar(50);not null" json:"action"` // created, bid_accepted, status_changed, deleted
	OldStatus CaseStatus `gorm:"type:varchar(20)" json:"old_status"`
	NewStatus CaseStatus `gorm:"type:varchar(20)" json:"new_status"`
	Reason    string     `gorm:"type:text" json:"reason"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &CasePost{}, &Bid{}, &Review{}, &LawyerProfile{}, &CaseHistory{},
	}
}
