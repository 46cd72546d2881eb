package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/postgrest-go"

	"github.com/fyrsmithlabs/ledgerd/internal/config"
	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/functions"
	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
	"github.com/fyrsmithlabs/ledgerd/internal/permissions"
)

type recorded struct {
	Method string
	Table  string
	Query  url.Values
	Body   string
}

// fakeREST answers PostgREST requests with canned bodies keyed by
// "METHOD table".
type fakeREST struct {
	mu        sync.Mutex
	responses map[string][]string
	status    int
	requests  []recorded
}

func newFakeREST(t *testing.T) (*fakeREST, *Client) {
	t.Helper()
	f := &fakeREST{responses: map[string][]string{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	c := NewFromREST(postgrest.NewClient(srv.URL+"/rest/v1", "public", nil))
	c.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return f, c
}

func (f *fakeREST) respond(method, table string, bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+table] = append(f.responses[method+" "+table], bodies...)
}

func (f *fakeREST) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	table := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Table: table, Query: r.URL.Query(), Body: string(body)})
	status := f.status
	key := r.Method + " " + table
	resp := "[]"
	if queue := f.responses[key]; len(queue) > 0 {
		resp = queue[0]
		f.responses[key] = queue[1:]
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"boom","code":"XX000"}`))
		return
	}
	if r.Method == http.MethodPost && resp == "[]" {
		w.WriteHeader(http.StatusCreated)
		return
	}
	_, _ = w.Write([]byte(resp))
}

func (f *fakeREST) last(t *testing.T, method, table string) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Method == method && f.requests[i].Table == table {
			return f.requests[i]
		}
	}
	t.Fatalf("no %s request to %s", method, table)
	return recorded{}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(config.SupabaseConfig{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(config.SupabaseConfig{URL: "https://x.supabase.co"})
	assert.Error(t, err)

	c, err := New(config.SupabaseConfig{URL: "https://x.supabase.co", APIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestFindByExternalID(t *testing.T) {
	f, c := newFakeREST(t)
	f.respond(http.MethodGet, tableChannels,
		`[{"id":"ch-1","user_id":"u-1","tenant_id":"t-1","external_id":"whatsapp:+15550001","channel_type":"whatsapp","is_verified":true}]`,
		`[]`,
	)

	ch, err := c.FindByExternalID(context.Background(), "whatsapp:+15550001")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, orchestrator.Channel{ID: "ch-1", UserID: "u-1", TenantID: "t-1", ExternalID: "whatsapp:+15550001", Type: "whatsapp", IsVerified: true}, *ch)
	assert.Equal(t, "eq.whatsapp:+15550001", f.last(t, http.MethodGet, tableChannels).Query.Get("external_id"))

	ch, err = c.FindByExternalID(context.Background(), "whatsapp:+1999")
	require.NoError(t, err)
	assert.Nil(t, ch)
}

func TestFindByExternalID_Error(t *testing.T) {
	f, c := newFakeREST(t)
	f.status = http.StatusInternalServerError

	_, err := c.FindByExternalID(context.Background(), "x")
	assert.Error(t, err)
}

func TestResolveOrCreate(t *testing.T) {
	key := orchestrator.ConversationKey{UserID: "u-1", ChannelID: "ch-1", TenantID: "t-1"}

	t.Run("existing", func(t *testing.T) {
		f, c := newFakeREST(t)
		f.respond(http.MethodGet, tableConversation,
			`[{"id":"conv-1","user_id":"u-1","channel_id":"ch-1","tenant_id":"t-1","status":"active","created_at":"2026-02-01T10:00:00Z"}]`)

		conv, err := c.ResolveOrCreate(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, "conv-1", conv.ID)

		req := f.last(t, http.MethodGet, tableConversation)
		assert.Equal(t, "eq.active", req.Query.Get("status"))
		assert.Equal(t, "eq.ch-1", req.Query.Get("channel_id"))
	})

	t.Run("creates when none active", func(t *testing.T) {
		f, c := newFakeREST(t)
		f.respond(http.MethodPost, tableConversation,
			`[{"id":"conv-2","user_id":"u-1","channel_id":"ch-1","tenant_id":"t-1","status":"active","created_at":"2026-03-01T09:00:00Z"}]`)

		conv, err := c.ResolveOrCreate(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, "conv-2", conv.ID)

		var inserted map[string]any
		require.NoError(t, json.Unmarshal([]byte(f.last(t, http.MethodPost, tableConversation).Body), &inserted))
		assert.Equal(t, "active", inserted["status"])
		assert.Equal(t, "t-1", inserted["tenant_id"])
	})
}

func TestCreate_WithoutChannel(t *testing.T) {
	f, c := newFakeREST(t)
	f.respond(http.MethodPost, tableConversation, `[{"id":"conv-3","user_id":"u-1","tenant_id":"t-1","status":"active"}]`)

	conv, err := c.Create(context.Background(), orchestrator.ConversationKey{UserID: "u-1", TenantID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "conv-3", conv.ID)
	assert.NotContains(t, f.last(t, http.MethodPost, tableConversation).Body, "channel_id")
}

func TestAppendMessage(t *testing.T) {
	f, c := newFakeREST(t)

	err := c.AppendMessage(context.Background(), "conv-1", orchestrator.HistoryMessage{
		Direction: conversation.DirectionOutbound,
		Content:   "Your invoice is paid.",
		Metadata:  map[string]any{"decision_id": "d-1"},
	})
	require.NoError(t, err)

	var row messageRow
	require.NoError(t, json.Unmarshal([]byte(f.last(t, http.MethodPost, tableMessages).Body), &row))
	assert.Equal(t, "conv-1", row.ConversationID)
	assert.Equal(t, "outbound", row.Direction)
	assert.Equal(t, "2026-03-01T09:00:00Z", row.CreatedAt)
	assert.Equal(t, "d-1", row.Metadata["decision_id"])
}

func TestRoleFor(t *testing.T) {
	f, c := newFakeREST(t)
	f.respond(http.MethodGet, tableMembers, `[{"role":"viewer","permissions":["approve:payments"]}]`, `[]`)

	role, err := c.RoleFor(context.Background(), "u-1", "t-1")
	require.NoError(t, err)
	assert.Equal(t, permissions.Role{Name: "viewer", Grants: []string{"approve:payments"}}, role)

	_, err = c.RoleFor(context.Background(), "u-2", "t-1")
	assert.ErrorIs(t, err, permissions.ErrNoMembership)
}

func TestLedger_SearchInvoices(t *testing.T) {
	f, c := newFakeREST(t)
	f.respond(http.MethodGet, tableInvoices, `[{"id":"inv-1","tenant_id":"t-1","number":"INV-001","supplier_name":"Acme","amount":120.5,"currency":"EUR","status":"unpaid"}]`)

	invoices, err := c.SearchInvoices(context.Background(), "t-1", functions.InvoiceFilter{Status: "unpaid", Supplier: "acme", Limit: 5})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.InDelta(t, 120.5, invoices[0].Amount, 0.001)

	q := f.last(t, http.MethodGet, tableInvoices).Query
	assert.Equal(t, "eq.t-1", q.Get("tenant_id"))
	assert.Equal(t, "eq.unpaid", q.Get("status"))
	assert.Equal(t, "ilike.*acme*", q.Get("supplier_name"))
	assert.Equal(t, "5", q.Get("limit"))
}

func TestLedger_GetInvoice(t *testing.T) {
	f, c := newFakeREST(t)

	_, err := c.GetInvoice(context.Background(), "t-1", "INV-404")
	assert.ErrorIs(t, err, functions.ErrNotFound)
	assert.Equal(t, "eq.INV-404", f.last(t, http.MethodGet, tableInvoices).Query.Get("number"))

	id := "5b5f3c9e-4b55-4c5a-9d0b-3c2f1b7a9e10"
	f.respond(http.MethodGet, tableInvoices, `[{"id":"`+id+`","tenant_id":"t-1","number":"INV-7","status":"paid"}]`)
	inv, err := c.GetInvoice(context.Background(), "t-1", id)
	require.NoError(t, err)
	assert.Equal(t, "INV-7", inv.Number)
	assert.Equal(t, "eq."+id, f.last(t, http.MethodGet, tableInvoices).Query.Get("id"))
}

func TestLedger_ApprovePayment(t *testing.T) {
	f, c := newFakeREST(t)
	f.respond(http.MethodGet, tableInvoices, `[{"id":"inv-1","tenant_id":"t-1","number":"INV-001","amount":80,"currency":"EUR","status":"overdue"}]`)
	f.respond(http.MethodPatch, tableInvoices, `[{"id":"inv-1","tenant_id":"t-1","number":"INV-001","amount":80,"currency":"EUR","status":"approved"}]`)

	approval, err := c.ApprovePayment(context.Background(), "t-1", "INV-001", "u-9")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", approval.InvoiceID)
	assert.Equal(t, "u-9", approval.ApprovedBy)

	var inserted functions.PaymentApproval
	require.NoError(t, json.Unmarshal([]byte(f.last(t, http.MethodPost, tableApprovals).Body), &inserted))
	assert.InDelta(t, 80.0, inserted.Amount, 0.001)
	assert.Contains(t, f.last(t, http.MethodPatch, tableInvoices).Body, `"approved"`)
}

func TestLedger_SearchTransactions(t *testing.T) {
	f, c := newFakeREST(t)

	txs, err := c.SearchTransactions(context.Background(), "t-1", functions.TransactionFilter{From: "2026-01-01", To: "2026-01-31"})
	require.NoError(t, err)
	assert.Empty(t, txs)

	q := f.last(t, http.MethodGet, tableTransactions).Query
	assert.Equal(t, "(and(booked_on.gte.2026-01-01,booked_on.lte.2026-01-31))", q.Get("or"))

	_, err = c.SearchTransactions(context.Background(), "t-1", functions.TransactionFilter{From: "2026-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "gte.2026-01-01", f.last(t, http.MethodGet, tableTransactions).Query.Get("booked_on"))
}
