package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"github.com/shopspring/decimal"
)

const defaultCurrency = "USD"

type ClientService struct{ *base }

type ClientInput struct {
	Name         *string              `json:"name" binding:"omitempty,max=200"`
	Email        *string              `json:"email" binding:"omitempty,email"`
	Phone        *string              `json:"phone" binding:"omitempty,max=50"`
	CompanyName  *string              `json:"companyName" binding:"omitempty,max=200"`
	Industry     *string              `json:"industry" binding:"omitempty,max=100"`
	JobTitle     *string              `json:"jobTitle" binding:"omitempty,max=100"`
	Status       *models.ClientStatus `json:"status"`
	Value        *decimal.Decimal     `json:"value"`
	Currency     *string              `json:"currency"`
	AssignedTo   *uuid.UUID           `json:"assignedTo"`
	Address      *models.Address      `json:"address"`
	Tags         []string             `json:"tags" binding:"omitempty,max=50,dive,max=50"`
	Source       *string              `json:"source" binding:"omitempty,max=100"`
	LastContact  *time.Time           `json:"lastContact"`
	NextFollowUp *time.Time           `json:"nextFollowUp"`
}

// NoteInput is the body of a note append.
type NoteInput struct {
	Content   string `json:"content" binding:"required,max=5000"`
	IsPrivate bool   `json:"isPrivate"`
}

// companyOf returns the company that new records of p belong to. Super
// admins have none and cannot own clients or leads.
func companyOf(p *auth.Principal) (uuid.UUID, uuid.UUID, error) {
	if p.User.TenantID == nil || p.User.CompanyID == nil {
		return uuid.Nil, uuid.Nil, apperr.ErrForbidden
	}
	return *p.User.TenantID, *p.User.CompanyID, nil
}

// checkAssignee requires the assignee to be a user the caller can see.
// A failed lookup is a server error, not a field problem.
func (b *base) checkAssignee(ctx context.Context, p *auth.Principal, id *uuid.UUID, errs problems) error {
	if id == nil {
		return nil
	}
	u, err := b.store.Users.GetByID(ctx, EntityScope(p), *id)
	if err != nil {
		return storeErr("load assignee", err)
	}
	if u == nil {
		errs.add("assignedTo", "must be a user in your company")
	}
	return nil
}

func checkMoney(field string, v *decimal.Decimal, currency *string, errs problems) {
	if v != nil && v.IsNegative() {
		errs.add(field, "cannot be negative")
	}
	if currency != nil && !currencyCode.MatchString(*currency) {
		errs.add("currency", "must be a three-letter ISO currency code")
	}
}

// viewNotes hides other people's private notes unless p manages settings.
func viewNotes(p *auth.Principal, notes []models.Note) []models.Note {
	return models.VisibleTo(notes, p.User.ID, p.Can(models.PermManageSettings))
}

func (s *ClientService) view(p *auth.Principal, c *models.Client) *models.Client {
	c.Notes = viewNotes(p, c.Notes)
	return c
}

func (in ClientInput) apply(c *models.Client) {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		c.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Phone != nil {
		c.Phone = *in.Phone
	}
	if in.CompanyName != nil {
		c.CompanyName = *in.CompanyName
	}
	if in.Industry != nil {
		c.Industry = *in.Industry
	}
	if in.JobTitle != nil {
		c.JobTitle = *in.JobTitle
	}
	if in.Status != nil {
		c.Status = *in.Status
	}
	if in.Value != nil {
		c.Value = *in.Value
	}
	if in.Currency != nil {
		c.Currency = *in.Currency
	}
	if in.AssignedTo != nil {
		c.AssignedTo = in.AssignedTo
	}
	if in.Address != nil {
		c.Address = *in.Address
	}
	if in.Tags != nil {
		c.Tags = append([]string{}, in.Tags...)
	}
	if in.Source != nil {
		c.Source = *in.Source
	}
	if in.LastContact != nil {
		c.LastContact = in.LastContact
	}
	if in.NextFollowUp != nil {
		c.NextFollowUp = in.NextFollowUp
	}
}

func (s *ClientService) check(ctx context.Context, p *auth.Principal, in ClientInput, errs problems) error {
	errs.email("email", in.Email)
	if in.Status != nil && !in.Status.Valid() {
		errs.add("status", "is not a known client status")
	}
	checkMoney("value", in.Value, in.Currency, errs)
	return s.checkAssignee(ctx, p, in.AssignedTo, errs)
}

func (s *ClientService) Create(ctx context.Context, p *auth.Principal, in ClientInput) (*models.Client, error) {
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

	c := &models.Client{
		TenantID:  tenantID,
		CompanyID: companyID,
		Status:    models.ClientActive,
		Value:     decimal.Zero,
		Currency:  defaultCurrency,
		Notes:     []models.Note{},
		Tags:      []string{},
		CreatedBy: p.User.ID,
	}
	in.apply(c)

	created, err := s.store.Clients.Create(ctx, c)
	if err != nil {
		return nil, storeErr("create client", err)
	}
	s.publish(ctx, invalidation.Clients, invalidation.Created, created.ID, &created.TenantID, &created.CompanyID)
	return s.view(p, created), nil
}

func (s *ClientService) get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*models.Client, error) {
	c, err := s.store.Clients.GetByID(ctx, EntityScope(p), id)
	if err != nil {
		return nil, storeErr("get client", err)
	}
	if c == nil {
		return nil, apperr.NotFound("client")
	}
	return c, nil
}

func (s *ClientService) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*models.Client, error) {
	c, err := s.get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return s.view(p, c), nil
}

func (s *ClientService) List(ctx context.Context, p *auth.Principal, q Query) (*Page[models.Client], error) {
	f := q.filter(ListScope(p, q))
	items, total, err := s.store.Clients.List(ctx, f)
	if err != nil {
		return nil, storeErr("list clients", err)
	}
	for i := range items {
		s.view(p, &items[i])
	}
	return newPage(items, total, f), nil
}

func (s *ClientService) Update(ctx context.Context, p *auth.Principal, id uuid.UUID, in ClientInput) (*models.Client, error) {
	c, err := s.get(ctx, p, id)
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
	in.apply(c)

	updated, err := s.store.Clients.Update(ctx, EntityScope(p), c)
	if err != nil {
		return nil, storeErr("update client", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("client")
	}
	s.publish(ctx, invalidation.Clients, invalidation.Updated, updated.ID, &updated.TenantID, &updated.CompanyID)
	return s.view(p, updated), nil
}

func (s *ClientService) Delete(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	c, err := s.get(ctx, p, id)
	if err != nil {
		return err
	}
	ok, err := s.store.Clients.Delete(ctx, EntityScope(p), id)
	if err != nil {
		return storeErr("delete client", err)
	}
	if !ok {
		return apperr.NotFound("client")
	}
	s.publish(ctx, invalidation.Clients, invalidation.Deleted, id, &c.TenantID, &c.CompanyID)
	return nil
}

func (b *base) newNote(p *auth.Principal, in NoteInput) (models.Note, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return models.Note{}, apperr.Field("content", "is required")
	}
	return models.Note{
		ID:        uuid.New(),
		Content:   content,
		Author:    p.User.ID,
		IsPrivate: in.IsPrivate,
		CreatedAt: b.now().UTC(),
	}, nil
}

// AddNote appends a note authored by p. Notes cannot be edited or
// removed afterwards.
func (s *ClientService) AddNote(ctx context.Context, p *auth.Principal, id uuid.UUID, in NoteInput) (*models.Client, error) {
	note, err := s.newNote(p, in)
	if err != nil {
		return nil, err
	}
	c, err := s.store.Clients.AppendNote(ctx, EntityScope(p), id, note)
	if err != nil {
		return nil, storeErr("append client note", err)
	}
	if c == nil {
		return nil, apperr.NotFound("client")
	}
	s.publish(ctx, invalidation.Clients, invalidation.Noted, c.ID, &c.TenantID, &c.CompanyID)
	return s.view(p, c), nil
}
