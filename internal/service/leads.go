package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LeadService struct{ *base }

type LeadInput struct {
	Name              *string              `json:"name" binding:"omitempty,max=200"`
	Email             *string              `json:"email" binding:"omitempty,email"`
	Phone             *string              `json:"phone" binding:"omitempty,max=50"`
	CompanyName       *string              `json:"companyName" binding:"omitempty,max=200"`
	Industry          *string              `json:"industry" binding:"omitempty,max=100"`
	JobTitle          *string              `json:"jobTitle" binding:"omitempty,max=100"`
	Status            *models.LeadStatus   `json:"status"`
	Priority          *models.LeadPriority `json:"priority"`
	Source            *string              `json:"source" binding:"omitempty,max=100"`
	EstimatedValue    *decimal.Decimal     `json:"estimatedValue"`
	Currency          *string              `json:"currency"`
	Probability       *int                 `json:"probability"`
	ExpectedCloseDate *time.Time           `json:"expectedCloseDate"`
	AssignedTo        *uuid.UUID           `json:"assignedTo"`
	Address           *models.Address      `json:"address"`
	Tags              []string             `json:"tags" binding:"omitempty,max=50,dive,max=50"`
}

type ActivityInput struct {
	Type          models.ActivityType `json:"type" binding:"required"`
	ScheduledDate time.Time           `json:"scheduledDate" binding:"required"`
	Notes         string              `json:"notes" binding:"max=5000"`
	Completed     bool                `json:"completed"`
}

func (in LeadInput) apply(l *models.Lead) {
	if in.Name != nil {
		l.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		l.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Phone != nil {
		l.Phone = *in.Phone
	}
	if in.CompanyName != nil {
		l.CompanyName = *in.CompanyName
	}
	if in.Industry != nil {
		l.Industry = *in.Industry
	}
	if in.JobTitle != nil {
		l.JobTitle = *in.JobTitle
	}
	if in.Status != nil {
		l.Status = *in.Status
	}
	if in.Priority != nil {
		l.Priority = *in.Priority
	}
	if in.Source != nil {
		l.Source = *in.Source
	}
	if in.EstimatedValue != nil {
		l.EstimatedValue = *in.EstimatedValue
	}
	if in.Currency != nil {
		l.Currency = *in.Currency
	}
	if in.Probability != nil {
		l.Probability = *in.Probability
	}
	if in.ExpectedCloseDate != nil {
		l.ExpectedCloseDate = in.ExpectedCloseDate
	}
	if in.AssignedTo != nil {
		l.AssignedTo = in.AssignedTo
	}
	if in.Address != nil {
		l.Address = *in.Address
	}
	if in.Tags != nil {
		l.Tags = append([]string{}, in.Tags...)
	}
}

func (s *LeadService) check(ctx context.Context, p *auth.Principal, in LeadInput, errs problems) error {
	errs.email("email", in.Email)
	if in.Status != nil && !in.Status.Valid() {
		errs.add("status", "is not a known lead status")
	}
	if in.Priority != nil && !in.Priority.Valid() {
		errs.add("priority", "is not a known priority")
	}
	if in.Probability != nil && (*in.Probability < 0 || *in.Probability > 100) {
		errs.add("probability", "must be between 0 and 100")
	}
	checkMoney("estimatedValue", in.EstimatedValue, in.Currency, errs)
	return s.checkAssignee(ctx, p, in.AssignedTo, errs)
}

func (s *LeadService) view(p *auth.Principal, l *models.Lead) *models.Lead {
	l.Notes = viewNotes(p, l.Notes)
	return l
}

func (s *LeadService) Create(ctx context.Context, p *auth.Principal, in LeadInput) (*models.Lead, error) {
	tenantID, companyID, err := companyOf(p)
	if err != nil {
		return nil, err
	}

	errs := problems{}
	errs.required("name", in.Name)
	errs.required("email", in.Email)
	if err := s.check(ctx, p, in, errs); err != nil {
		return nil, err
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	l := &models.Lead{
		TenantID:       tenantID,
		CompanyID:      companyID,
		Status:         models.LeadNew,
		Priority:       models.PriorityMedium,
		EstimatedValue: decimal.Zero,
		Currency:       defaultCurrency,
		Tags:           []string{},
		Notes:          []models.Note{},
		Activities:     []models.Activity{},
		CreatedBy:      p.User.ID,
	}
	in.apply(l)

	created, err := s.store.Leads.Create(ctx, l)
	if err != nil {
		return nil, storeErr("create lead", err)
	}
	s.publish(ctx, invalidation.Leads, invalidation.Created, created.ID, &created.TenantID, &created.CompanyID)
	return s.view(p, created), nil
}

func (s *LeadService) get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*models.Lead, error) {
	l, err := s.store.Leads.GetByID(ctx, EntityScope(p), id)
	if err != nil {
		return nil, storeErr("get lead", err)
	}
	if l == nil {
		return nil, apperr.NotFound("lead")
	}
	return l, nil
}

func (s *LeadService) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*models.Lead, error) {
	l, err := s.get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return s.view(p, l), nil
}

func (s *LeadService) List(ctx context.Context, p *auth.Principal, q Query) (*Page[models.Lead], error) {
	f := q.filter(ListScope(p, q))
	items, total, err := s.store.Leads.List(ctx, f)
	if err != nil {
		return nil, storeErr("list leads", err)
	}
	for i := range items {
		s.view(p, &items[i])
	}
	return newPage(items, total, f), nil
}

// Update edits lead fields. Conversion state is owned by Convert and is
// never changed here.
func (s *LeadService) Update(ctx context.Context, p *auth.Principal, id uuid.UUID, in LeadInput) (*models.Lead, error) {
	l, err := s.get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	errs := problems{}
	if in.Name != nil {
		errs.required("name", in.Name)
	}
	if in.Email != nil {
		errs.required("email", in.Email)
	}
	if err := s.check(ctx, p, in, errs); err != nil {
		return nil, err
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	in.apply(l)

	updated, err := s.store.Leads.Update(ctx, EntityScope(p), l)
	if err != nil {
		return nil, storeErr("update lead", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("lead")
	}
	s.publish(ctx, invalidation.Leads, invalidation.Updated, updated.ID, &updated.TenantID, &updated.CompanyID)
	return s.view(p, updated), nil
}

func (s *LeadService) Delete(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	l, err := s.get(ctx, p, id)
	if err != nil {
		return err
	}
	ok, err := s.store.Leads.Delete(ctx, EntityScope(p), id)
	if err != nil {
		return storeErr("delete lead", err)
	}
	if !ok {
		return apperr.NotFound("lead")
	}
	s.publish(ctx, invalidation.Leads, invalidation.Deleted, id, &l.TenantID, &l.CompanyID)
	return nil
}

// Conversion is the outcome of converting a lead.
type Conversion struct {
	Lead   *models.Lead   `json:"lead"`
	Client *models.Client `json:"client"`
}

// Convert turns a lead into a client at most once. The store performs
// the flag flip and the client insert as one compare-and-set, so
// concurrent callers see exactly one success and AlreadyConverted
// otherwise. The lead's own status is left as it was.
func (s *LeadService) Convert(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Conversion, error) {
	lead, client, err := s.store.Leads.Convert(ctx, EntityScope(p), id, p.User.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyConverted) {
			return nil, apperr.ErrAlreadyConverted
		}
		return nil, storeErr("convert lead", err)
	}
	if lead == nil {
		return nil, apperr.NotFound("lead")
	}

	s.logger.Info("lead converted",
		zap.String("lead_id", lead.ID.String()),
		zap.String("client_id", client.ID.String()),
		zap.String("by", p.User.ID.String()),
	)
	s.publish(ctx, invalidation.Leads, invalidation.Converted, lead.ID, &lead.TenantID, &lead.CompanyID)
	return &Conversion{Lead: s.view(p, lead), Client: client}, nil
}

func (s *LeadService) AddNote(ctx context.Context, p *auth.Principal, id uuid.UUID, in NoteInput) (*models.Lead, error) {
	note, err := s.newNote(p, in)
	if err != nil {
		return nil, err
	}
	l, err := s.store.Leads.AppendNote(ctx, EntityScope(p), id, note)
	if err != nil {
		return nil, storeErr("append lead note", err)
	}
	if l == nil {
		return nil, apperr.NotFound("lead")
	}
	s.publish(ctx, invalidation.Leads, invalidation.Noted, l.ID, &l.TenantID, &l.CompanyID)
	return s.view(p, l), nil
}

func (s *LeadService) AddActivity(ctx context.Context, p *auth.Principal, id uuid.UUID, in ActivityInput) (*models.Lead, error) {
	errs := problems{}
	if !in.Type.Valid() {
		errs.add("type", "is not a known activity type")
	}
	if in.ScheduledDate.IsZero() {
		errs.add("scheduledDate", "is required")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	activity := models.Activity{
		ID:            uuid.New(),
		Type:          in.Type,
		ScheduledDate: in.ScheduledDate.UTC(),
		Notes:         strings.TrimSpace(in.Notes),
		Completed:     in.Completed,
		CreatedBy:     p.User.ID,
		CreatedAt:     s.now().UTC(),
	}
	l, err := s.store.Leads.AppendActivity(ctx, EntityScope(p), id, activity)
	if err != nil {
		return nil, storeErr("append lead activity", err)
	}
	if l == nil {
		return nil, apperr.NotFound("lead")
	}
	s.publish(ctx, invalidation.Leads, invalidation.Scheduled, l.ID, &l.TenantID, &l.CompanyID)
	return s.view(p, l), nil
}
