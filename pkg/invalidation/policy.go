// Package invalidation is the declarative map from a mutation to the
// query groups it makes stale. The server stamps it onto every change
// event and the client SDK uses it to drop cached reads, so both sides
// agree on what a mutation touches.
package invalidation

import (
	"slices"
	"strings"
	"time"
)

// Group names a family of cached queries. Each value is the first path
// segment under /api that serves the group.
type Group string

const (
	Users      Group = "users"
	Companies  Group = "companies"
	Clients    Group = "clients"
	Leads      Group = "leads"
	Tenant     Group = "tenant"
	Roles      Group = "roles"
	Dashboard  Group = "dashboard"
	SuperAdmin Group = "super-admin"
	Auth       Group = "auth"
)

type Action string

const (
	Created   Action = "created"
	Updated   Action = "updated"
	Deleted   Action = "deleted"
	Converted Action = "converted"
	Noted     Action = "noted"
	Scheduled Action = "activity_added"
)

type key struct {
	group  Group
	action Action
}

// byGroup lists what any mutation of a group invalidates.
var byGroup = map[Group][]Group{
	Users:      {Users, Companies, Tenant, Auth},
	Companies:  {Companies, Tenant, SuperAdmin},
	Clients:    {Clients, Dashboard, Tenant},
	Leads:      {Leads, Dashboard, Tenant},
	Tenant:     {Tenant, Companies},
	SuperAdmin: {SuperAdmin, Tenant},
}

// byAction overrides byGroup for mutations that reach further.
var byAction = map[key][]Group{
	{Leads, Converted}: {Leads, Clients, Dashboard, Tenant},
	{Leads, Noted}:     {Leads},
	{Leads, Scheduled}: {Leads},
	{Clients, Noted}:   {Clients},
}

// Affected returns the groups made stale by action on group, always
// including group itself.
func Affected(group Group, action Action) []Group {
	if gs, ok := byAction[key{group, action}]; ok {
		return slices.Clone(gs)
	}
	if gs, ok := byGroup[group]; ok {
		return slices.Clone(gs)
	}
	return []Group{group}
}

// Event is one mutation as published to subscribers.
type Event struct {
	Group     Group     `json:"group"`
	Action    Action    `json:"action"`
	ID        string    `json:"id,omitempty"`
	TenantID  string    `json:"tenantId,omitempty"`
	CompanyID string    `json:"companyId,omitempty"`
	Stale     []Group   `json:"stale"`
	At        time.Time `json:"at"`
}

func NewEvent(group Group, action Action, id string) Event {
	return Event{
		Group:  group,
		Action: action,
		ID:     id,
		Stale:  Affected(group, action),
		At:     time.Now().UTC(),
	}
}

// GroupOf maps a request path such as /api/leads/123?x=1 to its group.
func GroupOf(path string) (Group, bool) {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimPrefix(path, "api/")
	if i := strings.IndexAny(path, "/?"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "", false
	}
	return Group(path), true
}
