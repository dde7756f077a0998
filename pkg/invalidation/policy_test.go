package invalidation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAffected(t *testing.T) {
	assert.ElementsMatch(t, []Group{Leads, Clients, Dashboard, Tenant}, Affected(Leads, Converted))
	assert.ElementsMatch(t, []Group{Leads, Dashboard, Tenant}, Affected(Leads, Updated))
	assert.ElementsMatch(t, []Group{Clients}, Affected(Clients, Noted))
	assert.Equal(t, []Group{Roles}, Affected(Roles, Updated))
}

func TestAffectedReturnsCopy(t *testing.T) {
	got := Affected(Leads, Converted)
	got[0] = "mutated"
	assert.Equal(t, Leads, Affected(Leads, Converted)[0])
}

func TestGroupOf(t *testing.T) {
	tests := map[string]Group{
		"/api/leads":                Leads,
		"/api/leads/abc/convert":    Leads,
		"/api/clients?page=2":       Clients,
		"api/super-admin/tenants/1": SuperAdmin,
		"/dashboard/stats":          Dashboard,
	}
	for path, want := range tests {
		got, ok := GroupOf(path)
		assert.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}

	_, ok := GroupOf("/api/")
	assert.False(t, ok)
}
