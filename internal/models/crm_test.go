package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedValue(t *testing.T) {
	lead := Lead{EstimatedValue: decimal.NewFromInt(10000), Probability: 70}
	assert.True(t, decimal.NewFromInt(7000).Equal(lead.WeightedValue()))

	lead.Probability = 0
	assert.True(t, lead.WeightedValue().IsZero())
}

func TestLeadJSONIncludesWeightedValue(t *testing.T) {
	lead := Lead{EstimatedValue: decimal.NewFromInt(10000), Probability: 70, Status: LeadNew}

	raw, err := json.Marshal(lead)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "7000", out["weightedValue"])
	assert.Equal(t, "new", out["status"])
}

func TestLeadJSONDecodesStrictly(t *testing.T) {
	lead := Lead{ID: uuid.New(), Name: "Ada", EstimatedValue: decimal.NewFromInt(10000), Probability: 70, Tags: []string{"vip"}}
	raw, err := json.Marshal(lead)
	require.NoError(t, err)

	var back Lead
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, lead.ID, back.ID)
	assert.Equal(t, []string{"vip"}, back.Tags)
	assert.True(t, lead.EstimatedValue.Equal(back.EstimatedValue))

	assert.Error(t, json.Unmarshal([]byte(`{"name":"Ada","unexpected":1}`), &back))
}

func TestToClientCopiesContactFields(t *testing.T) {
	rep := uuid.New()
	lead := &Lead{
		ID:             uuid.New(),
		TenantID:       uuid.New(),
		CompanyID:      uuid.New(),
		Name:           "Ada Lovelace",
		Email:          "ada@example.com",
		Phone:          "+44 20 0000",
		CompanyName:    "Analytical Engines",
		Industry:       "Computing",
		JobTitle:       "Founder",
		Status:         LeadNegotiation,
		EstimatedValue: decimal.NewFromInt(2500),
		Currency:       "GBP",
		AssignedTo:     &rep,
		Address:        Address{City: "London", Country: "UK"},
		Tags:           []string{"vip"},
	}
	actor := uuid.New()

	client := lead.ToClient(actor)

	assert.Equal(t, lead.Name, client.Name)
	assert.Equal(t, lead.Email, client.Email)
	assert.Equal(t, lead.CompanyID, client.CompanyID)
	assert.Equal(t, lead.TenantID, client.TenantID)
	assert.Equal(t, lead.Address, client.Address)
	assert.Equal(t, "GBP", client.Currency)
	assert.True(t, client.Value.Equal(lead.EstimatedValue))
	assert.Equal(t, ClientActive, client.Status)
	assert.Equal(t, SourceLeadConversion, client.Source)
	require.NotNil(t, client.SourceLead)
	assert.Equal(t, lead.ID, *client.SourceLead)
	assert.Equal(t, actor, client.CreatedBy)

	client.Tags[0] = "changed"
	assert.Equal(t, "vip", lead.Tags[0])
}

func TestLeadStatusOpen(t *testing.T) {
	for _, s := range []LeadStatus{LeadNew, LeadContacted, LeadQualified, LeadProposal, LeadNegotiation} {
		assert.True(t, s.Open(), s)
	}
	assert.False(t, LeadClosedWon.Open())
	assert.False(t, LeadClosedLost.Open())
	assert.True(t, LeadClosedLost.Valid())
	assert.False(t, LeadStatus("won").Valid())
}

func TestVisibleToHidesOthersPrivateNotes(t *testing.T) {
	me, other := uuid.New(), uuid.New()
	notes := []Note{
		{Content: "public", Author: other},
		{Content: "mine", Author: me, IsPrivate: true},
		{Content: "theirs", Author: other, IsPrivate: true},
	}

	visible := VisibleTo(notes, me, false)
	require.Len(t, visible, 2)
	assert.Equal(t, "public", visible[0].Content)
	assert.Equal(t, "mine", visible[1].Content)

	assert.Len(t, VisibleTo(notes, me, true), 3)
}
