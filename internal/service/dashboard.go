package service

import (
	"context"

	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/shopspring/decimal"
)

type DashboardService struct{ *base }

type DashboardStats struct {
	Clients          *models.ClientStats `json:"clients"`
	Leads            *models.LeadStats   `json:"leads"`
	PipelineValue    decimal.Decimal     `json:"pipelineValue"`
	WeightedPipeline decimal.Decimal     `json:"weightedPipeline"`
	TotalClientValue decimal.Decimal     `json:"totalClientValue"`
	// ConversionRate is converted leads over all leads, in percent with
	// two decimals.
	ConversionRate decimal.Decimal `json:"conversionRate"`
}

func ConversionRate(converted, total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(converted).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(total)).Round(2)
}

// Stats aggregates the caller's visible clients and leads.
func (s *DashboardService) Stats(ctx context.Context, p *auth.Principal, q Query) (*DashboardStats, error) {
	scope := ListScope(p, q)

	clients, err := s.store.Clients.Stats(ctx, scope)
	if err != nil {
		return nil, storeErr("client stats", err)
	}
	leads, err := s.store.Leads.Stats(ctx, scope)
	if err != nil {
		return nil, storeErr("lead stats", err)
	}

	return &DashboardStats{
		Clients:          clients,
		Leads:            leads,
		PipelineValue:    leads.PipelineValue,
		WeightedPipeline: leads.WeightedPipeline,
		TotalClientValue: clients.TotalValue,
		ConversionRate:   ConversionRate(leads.Converted, leads.Total),
	}, nil
}

type RoleService struct{ *base }

func (s *RoleService) List(ctx context.Context) ([]models.Role, error) {
	roles, err := s.store.Roles.List(ctx)
	if err != nil {
		return nil, storeErr("list roles", err)
	}
	return roles, nil
}
