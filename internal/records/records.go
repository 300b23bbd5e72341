// Package records defines the entities kept in the scoped document store:
// cases, calendar events, revenues, expenses, documents and the firm's
// lawyer and employee directories.
package records

import (
	"errors"
	"time"
)

// Meta is stamped by the store on every record. Callers never set it; a
// record's namespace is fixed at creation.
type Meta struct {
	ID        string     `json:"id"`
	UserID    int        `json:"userId"`
	TeamID    string     `json:"teamId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// MetaKeys are the JSON keys a patch may not touch.
var MetaKeys = []string{"id", "userId", "teamId", "createdAt", "updatedAt"}

type CaseStatus string

const (
	CaseInProgress CaseStatus = "InProgress"
	CaseCompleted  CaseStatus = "Completed"
)

// Case is a legal process tracked by the firm.
type Case struct {
	Meta
	Name               string     `json:"name" validate:"required"`
	Number             string     `json:"number" validate:"required"`
	Client             string     `json:"client" validate:"required"`
	OpposingParty      string     `json:"opposingParty"`
	Court              string     `json:"court"`
	ResponsibleLawyers []string   `json:"responsibleLawyers" validate:"required,min=1,dive,required"`
	StartDate          string     `json:"startDate" validate:"required,datetime=2006-01-02"`
	Status             CaseStatus `json:"status" validate:"oneof=InProgress Completed"`
	Description        string     `json:"description"`
	Notes              string     `json:"notes"`
	Attachments        []string   `json:"attachments"`
}

var ErrCaseReopened = errors.New("a completed case cannot return to in progress")

// CaseTransition allows only InProgress -> Completed (or no change).
func CaseTransition(prev, next Case) error {
	if prev.Status == CaseCompleted && next.Status != CaseCompleted {
		return ErrCaseReopened
	}
	return nil
}

type EventCategory string

const (
	CategoryHearing            EventCategory = "Hearing"
	CategoryClientMeeting      EventCategory = "ClientMeeting"
	CategoryProceduralDeadline EventCategory = "ProceduralDeadline"
	CategoryInternalDeadline   EventCategory = "InternalDeadline"
	CategoryImportantCall      EventCategory = "ImportantCall"
	CategoryOther              EventCategory = "Other"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

type EventStatus string

const (
	EventPending   EventStatus = "Pending"
	EventCompleted EventStatus = "Completed"
)

// CalendarEvent is an entry on the firm calendar.
type CalendarEvent struct {
	Meta
	Title           string        `json:"title" validate:"required"`
	Date            string        `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string        `json:"time" validate:"omitempty,datetime=15:04"`
	CaseNumber      string        `json:"caseNumber,omitempty"`
	Client          string        `json:"client,omitempty"`
	Category        EventCategory `json:"category" validate:"oneof=Hearing ClientMeeting ProceduralDeadline InternalDeadline ImportantCall Other"`
	Priority        Priority      `json:"priority" validate:"oneof=Low Medium High Urgent"`
	AssignedLawyers []string      `json:"assignedLawyers" validate:"required,min=1,dive,required"`
	Status          EventStatus   `json:"status" validate:"oneof=Pending Completed"`
	Location        string        `json:"location"`
	Notes           string        `json:"notes"`
}

// Revenue is money received by the firm.
type Revenue struct {
	Meta
	Date               string   `json:"date" validate:"required,datetime=2006-01-02"`
	Amount             float64  `json:"amount" validate:"gt=0"`
	Source             string   `json:"source" validate:"required"`
	Category           string   `json:"category" validate:"required"`
	Client             string   `json:"client,omitempty"`
	ResponsibleMembers []string `json:"responsibleMembers" validate:"required,min=1,dive,required"`
	Description        string   `json:"description"`
}

// Expense is money spent by the firm.
type Expense struct {
	Meta
	Date               string   `json:"date" validate:"required,datetime=2006-01-02"`
	Amount             float64  `json:"amount" validate:"gt=0"`
	Type               string   `json:"type" validate:"required"`
	Category           string   `json:"category" validate:"required"`
	ResponsibleMembers []string `json:"responsibleMembers" validate:"required,min=1,dive,required"`
	Receipt            string   `json:"receipt,omitempty"`
	Description        string   `json:"description"`
}

type MemberStatus string

const (
	StatusActive   MemberStatus = "Active"
	StatusInactive MemberStatus = "Inactive"
)

// Lawyer is an entry of the lawyer directory.
type Lawyer struct {
	Meta
	FullName    string       `json:"fullName" validate:"required"`
	CPF         string       `json:"cpf" validate:"required"`
	BarNumber   string       `json:"barNumber" validate:"required"`
	Commission  float64      `json:"commission" validate:"gte=0,lte=100"`
	Status      MemberStatus `json:"status" validate:"oneof=Active Inactive"`
	Email       string       `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string       `json:"phone,omitempty"`
	Address     string       `json:"address,omitempty"`
	Photo       string       `json:"photo,omitempty"`
	Specialties []string     `json:"specialties"`
}

// Employee is an entry of the staff directory.
type Employee struct {
	Meta
	FullName string       `json:"fullName" validate:"required"`
	CPF      string       `json:"cpf" validate:"required"`
	Position string       `json:"position" validate:"required"`
	Salary   float64      `json:"salary" validate:"gte=0"`
	Status   MemberStatus `json:"status" validate:"oneof=Active Inactive"`
	Email    string       `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string       `json:"phone,omitempty"`
	Address  string       `json:"address,omitempty"`
	Photo    string       `json:"photo,omitempty"`
}

// Document is a generated legal document. Payload holds the fields specific
// to its type.
type Document struct {
	Meta
	Type          string         `json:"type" validate:"required"`
	Client        string         `json:"client" validate:"required"`
	Payload       map[string]any `json:"payload,omitempty"`
	AttachmentKey string         `json:"attachmentKey,omitempty"`
}
