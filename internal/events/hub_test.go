package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dial(t *testing.T, hub *Hub, sub Subscriber) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, sub)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (invalidation.Event, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return invalidation.Event{}, err
	}
	var ev invalidation.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev, nil
}

func TestHubFiltersByTenantAndCompany(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	defer hub.Close()

	tenantID, companyID := uuid.New(), uuid.New()
	member := dial(t, hub, Subscriber{UserID: uuid.New(), TenantID: &tenantID, CompanyID: &companyID})
	outsider := dial(t, hub, Subscriber{UserID: uuid.New(), TenantID: ptr(uuid.New())})
	admin := dial(t, hub, Subscriber{UserID: uuid.New()})
	require.Eventually(t, func() bool { return hub.Count() == 3 }, time.Second, 10*time.Millisecond)

	ev := invalidation.NewEvent(invalidation.Leads, invalidation.Converted, uuid.NewString())
	ev.TenantID, ev.CompanyID = tenantID.String(), companyID.String()
	hub.Broadcast(ev)

	got, err := readEvent(t, member)
	require.NoError(t, err)
	assert.Equal(t, invalidation.Leads, got.Group)
	assert.Contains(t, got.Stale, invalidation.Clients)

	_, err = readEvent(t, admin)
	assert.NoError(t, err)

	_, err = readEvent(t, outsider)
	assert.Error(t, err, "other tenants must not receive the event")
}

func TestSubscriberSees(t *testing.T) {
	tenantID, companyID := uuid.New(), uuid.New()
	sub := Subscriber{TenantID: &tenantID, CompanyID: &companyID}

	assert.True(t, sub.sees(invalidation.Event{TenantID: tenantID.String()}))
	assert.True(t, sub.sees(invalidation.Event{TenantID: tenantID.String(), CompanyID: companyID.String()}))
	assert.False(t, sub.sees(invalidation.Event{TenantID: tenantID.String(), CompanyID: uuid.NewString()}))
	assert.False(t, sub.sees(invalidation.Event{}))
	assert.True(t, Subscriber{}.sees(invalidation.Event{}))
}

func ptr[T any](v T) *T { return &v }
