package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ClientStatus string

const (
	ClientActive    ClientStatus = "active"
	ClientInactive  ClientStatus = "inactive"
	ClientPotential ClientStatus = "potential"
	ClientLost      ClientStatus = "lost"
)

func (s ClientStatus) Valid() bool {
	switch s {
	case ClientActive, ClientInactive, ClientPotential, ClientLost:
		return true
	}
	return false
}

// SourceLeadConversion marks clients created by converting a lead.
const SourceLeadConversion = "lead_conversion"

type Client struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant"`
	CompanyID    uuid.UUID       `json:"company"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone,omitempty"`
	CompanyName  string          `json:"companyName,omitempty"`
	Industry     string          `json:"industry,omitempty"`
	JobTitle     string          `json:"jobTitle,omitempty"`
	Status       ClientStatus    `json:"status"`
	Value        decimal.Decimal `json:"value"`
	Currency     string          `json:"currency"`
	AssignedTo   *uuid.UUID      `json:"assignedTo,omitempty"`
	Notes        []Note          `json:"notes"`
	Address      Address         `json:"address"`
	Tags         []string        `json:"tags"`
	Source       string          `json:"source,omitempty"`
	SourceLead   *uuid.UUID      `json:"sourceLead,omitempty"`
	LastContact  *time.Time      `json:"lastContact,omitempty"`
	NextFollowUp *time.Time      `json:"nextFollowUp,omitempty"`
	CreatedBy    uuid.UUID       `json:"createdBy"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type ClientStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"byStatus"`
	TotalValue decimal.Decimal  `json:"totalValue"`
}

type LeadStatus string

const (
	LeadNew         LeadStatus = "new"
	LeadContacted   LeadStatus = "contacted"
	LeadQualified   LeadStatus = "qualified"
	LeadProposal    LeadStatus = "proposal"
	LeadNegotiation LeadStatus = "negotiation"
	LeadClosedWon   LeadStatus = "closed_won"
	LeadClosedLost  LeadStatus = "closed_lost"
)

func (s LeadStatus) Valid() bool {
	return s.Open() || s == LeadClosedWon || s == LeadClosedLost
}

// Open is true for every status before a close decision.
func (s LeadStatus) Open() bool {
	switch s {
	case LeadNew, LeadContacted, LeadQualified, LeadProposal, LeadNegotiation:
		return true
	}
	return false
}

type LeadPriority string

const (
	PriorityLow    LeadPriority = "low"
	PriorityMedium LeadPriority = "medium"
	PriorityHigh   LeadPriority = "high"
	PriorityUrgent LeadPriority = "urgent"
)

func (p LeadPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ActivityType string

const (
	ActivityCall     ActivityType = "call"
	ActivityEmail    ActivityType = "email"
	ActivityMeeting  ActivityType = "meeting"
	ActivityTask     ActivityType = "task"
	ActivityFollowUp ActivityType = "follow_up"
)

func (a ActivityType) Valid() bool {
	switch a {
	case ActivityCall, ActivityEmail, ActivityMeeting, ActivityTask, ActivityFollowUp:
		return true
	}
	return false
}

type Activity struct {
	ID            uuid.UUID    `json:"id"`
	Type          ActivityType `json:"type"`
	ScheduledDate time.Time    `json:"scheduledDate"`
	Notes         string       `json:"notes,omitempty"`
	Completed     bool         `json:"completed"`
	CreatedBy     uuid.UUID    `json:"createdBy"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Lead is a prospect. ConvertedToClient flips false→true at most once;
// the lead row is kept after conversion.
type Lead struct {
	ID                uuid.UUID       `json:"id"`
	TenantID          uuid.UUID       `json:"tenant"`
	CompanyID         uuid.UUID       `json:"company"`
	Name              string          `json:"name"`
	Email             string          `json:"email"`
	Phone             string          `json:"phone,omitempty"`
	CompanyName       string          `json:"companyName,omitempty"`
	Industry          string          `json:"industry,omitempty"`
	JobTitle          string          `json:"jobTitle,omitempty"`
	Status            LeadStatus      `json:"status"`
	Priority          LeadPriority    `json:"priority"`
	Source            string          `json:"source,omitempty"`
	EstimatedValue    decimal.Decimal `json:"estimatedValue"`
	Currency          string          `json:"currency"`
	Probability       int             `json:"probability"`
	ExpectedCloseDate *time.Time      `json:"expectedCloseDate,omitempty"`
	AssignedTo        *uuid.UUID      `json:"assignedTo,omitempty"`
	Address           Address         `json:"address"`
	Tags              []string        `json:"tags"`
	ConvertedToClient bool            `json:"convertedToClient"`
	ConvertedDate     *time.Time      `json:"convertedDate,omitempty"`
	ConvertedClient   *uuid.UUID      `json:"convertedClient,omitempty"`
	Notes             []Note          `json:"notes"`
	Activities        []Activity      `json:"activities"`
	CreatedBy         uuid.UUID       `json:"createdBy"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// WeightedValue is EstimatedValue scaled by Probability percent.
func (l *Lead) WeightedValue() decimal.Decimal {
	return l.EstimatedValue.Mul(decimal.NewFromInt(int64(l.Probability))).Div(decimal.NewFromInt(100))
}

func (l Lead) MarshalJSON() ([]byte, error) {
	type plain Lead
	return json.Marshal(struct {
		plain
		WeightedValue decimal.Decimal `json:"weightedValue"`
	}{plain(l), l.WeightedValue()})
}

// UnmarshalJSON accepts the computed weightedValue and rejects any other
// unknown field.
func (l *Lead) UnmarshalJSON(b []byte) error {
	type plain Lead
	var v struct {
		plain
		WeightedValue decimal.Decimal `json:"weightedValue"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*l = Lead(v.plain)
	return nil
}

// ToClient builds the client record produced by converting l. The caller
// assigns ID and timestamps.
func (l *Lead) ToClient(convertedBy uuid.UUID) *Client {
	leadID := l.ID
	return &Client{
		TenantID:    l.TenantID,
		CompanyID:   l.CompanyID,
		Name:        l.Name,
		Email:       l.Email,
		Phone:       l.Phone,
		CompanyName: l.CompanyName,
		Industry:    l.Industry,
		JobTitle:    l.JobTitle,
		Status:      ClientActive,
		Value:       l.EstimatedValue,
		Currency:    l.Currency,
		AssignedTo:  l.AssignedTo,
		Notes:       []Note{},
		Address:     l.Address,
		Tags:        append([]string{}, l.Tags...),
		Source:      SourceLeadConversion,
		SourceLead:  &leadID,
		CreatedBy:   convertedBy,
	}
}

type LeadStats struct {
	Total            int64            `json:"total"`
	ByStatus         map[string]int64 `json:"byStatus"`
	Converted        int64            `json:"converted"`
	PipelineValue    decimal.Decimal  `json:"pipelineValue"`
	WeightedPipeline decimal.Decimal  `json:"weightedPipeline"`
}
