package crmclient

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/lalith-99/crmhub/pkg/invalidation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRefusesReadsOlderThanInvalidation(t *testing.T) {
	c := newCache()

	at := c.stamp(invalidation.Leads)
	c.invalidate(invalidation.Leads)
	assert.False(t, c.put("/api/leads", invalidation.Leads, []byte(`{}`), at))
	assert.Zero(t, c.len())

	at = c.stamp(invalidation.Leads)
	c.invalidate(invalidation.Clients)
	assert.True(t, c.put("/api/leads", invalidation.Leads, []byte(`{}`), at), "other groups do not matter")

	at = c.stamp(invalidation.Leads)
	c.clear()
	assert.False(t, c.put("/api/leads", invalidation.Leads, []byte(`{}`), at))
	assert.Zero(t, c.len())
}

func TestReadInFlightDuringInvalidationIsNotCached(t *testing.T) {
	var current atomic.Pointer[Session]
	url := stub(t, func(w http.ResponseWriter, r *http.Request) {
		// A mutation lands while this read is being served.
		current.Load().Invalidate(invalidation.Roles)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"name":"user","displayName":"User","permissions":[]}]}`)
	})
	s := newSession(New(Config{BaseURL: url}), SessionInfo{Token: "t"})
	current.Store(s)

	roles, err := s.Roles(context.Background())
	require.NoError(t, err)
	assert.Len(t, roles, 1)
	assert.Zero(t, s.CachedEntries())
}
