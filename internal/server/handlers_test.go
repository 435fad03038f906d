package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillagent/quill/internal/actions"
	"github.com/quillagent/quill/internal/store"
	"github.com/quillagent/quill/pkg/schema"
)

// memStore satisfies store.Store for handler tests.
type memStore struct {
	store.Store
	mu    sync.Mutex
	items map[string]*store.ScheduledPublish
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]*store.ScheduledPublish)}
}

func (m *memStore) CreateScheduledPublish(_ context.Context, sp *store.ScheduledPublish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sp
	m.items[sp.ID] = &cp
	return nil
}

func (m *memStore) GetScheduledPublish(_ context.Context, id string) (*store.ScheduledPublish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.items[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scheduled publish %s not found", id)
	}
	cp := *sp
	return &cp, nil
}

func (m *memStore) UpdateScheduledPublish(_ context.Context, id string, update store.ScheduledPublishUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.items[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "scheduled publish %s not found", id)
	}
	if update.Name != nil {
		sp.Name = *update.Name
	}
	if update.Action != nil {
		sp.Action = *update.Action
	}
	if update.Params != nil {
		sp.Params = update.Params
	}
	if update.CronExpression != nil {
		sp.CronExpression = *update.CronExpression
	}
	if update.When != nil {
		sp.When = *update.When
	}
	if update.Enabled != nil {
		sp.Enabled = *update.Enabled
	}
	if update.NextRunAt != nil {
		sp.NextRunAt = update.NextRunAt
	}
	return nil
}

func (m *memStore) ListScheduledPublishes(_ context.Context, filter store.ScheduledPublishFilter) ([]*store.ScheduledPublish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.ScheduledPublish
	for _, sp := range m.items {
		if filter.Enabled != nil && sp.Enabled != *filter.Enabled {
			continue
		}
		if filter.Action != "" && sp.Action != filter.Action {
			continue
		}
		cp := *sp
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) DeleteScheduledPublish(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "scheduled publish %s not found", id)
	}
	delete(m.items, id)
	return nil
}

// tokenRecorder satisfies TokenWriter.
type tokenRecorder struct {
	stored []byte
	err    error
}

func (t *tokenRecorder) Store(_ context.Context, raw []byte) error {
	if t.err != nil {
		return t.err
	}
	t.stored = raw
	return nil
}

// denyGate denies one action name.
type denyGate struct{ denied string }

func (g *denyGate) Check(_ context.Context, action string, _ map[string]any) error {
	if action == g.denied {
		return schema.NewErrorf(schema.ErrCodePolicyDenied, "rule no-publish denied action %q", action)
	}
	return nil
}

func testRegistry(t *testing.T) *actions.Registry {
	t.Helper()
	r := actions.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, r.Register(actions.Descriptor{Name: "blog_list_blogs"},
		func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"blogs": []any{}}, nil
		}))
	require.NoError(t, r.Register(actions.Descriptor{Name: "blog_publish_post"},
		func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"status": "live"}, nil
		}))
	require.NoError(t, r.Register(actions.Descriptor{Name: "blog_create_post"},
		func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return nil, schema.NewError(schema.ErrCodeValidation, "blog_id is required")
		}))
	require.NoError(t, r.RegisterType(actions.TypeDef{
		Name:       "BlogInfo",
		Properties: []actions.PropertyDef{{Name: "id", Kind: "string"}},
	}))
	return r
}

type fixture struct {
	handler http.Handler
	store   *memStore
	tokens  *tokenRecorder
}

func newTestServer(t *testing.T) *fixture {
	t.Helper()
	reg := testRegistry(t)
	st := newMemStore()
	tokens := &tokenRecorder{}
	srv := NewServer(Deps{
		Registry: reg,
		Runner:   actions.NewDispatcher(reg, &denyGate{denied: "blog_publish_post"}),
		Store:    st,
		Tokens:   tokens,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fixture{handler: srv.Handler(), store: st, tokens: tokens}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestListActions(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodGet, "/api/v1/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Actions []actions.Descriptor `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Actions, 3)
	assert.Equal(t, "blog_list_blogs", body.Actions[0].Name)
}

func TestListTypes(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodGet, "/api/v1/types", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Types []actions.TypeDef `json:"types"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Types, 1)
	assert.Equal(t, "BlogInfo", body.Types[0].Name)
}

func TestExecuteSuccess(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"action": "blog_list_blogs",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
}

func TestExecuteUnknownAction(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"action": "blog_delete_everything",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "not found")
}

func TestExecuteValidationError(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"action": "blog_create_post",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "blog_id is required")
}

func TestExecutePolicyDenied(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"action": "blog_publish_post",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "no-publish")
}

func TestExecuteRequiresAction(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"params": map[string]any{"blog_id": "42"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "action is required", decodeBody(t, rec)["error"])
}

func TestStoreTokenLoopbackOnly(t *testing.T) {
	f := newTestServer(t)

	payload := []byte(`{"token":"abc","refresh_token":"xyz"}`)

	// httptest.NewRequest defaults RemoteAddr to a non-loopback address.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, f.tokens.stored)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(payload))
	req.RemoteAddr = "127.0.0.1:54321"
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(payload), string(f.tokens.stored))
}

func TestStoreTokenRejectsInvalidPayload(t *testing.T) {
	f := newTestServer(t)
	f.tokens.err = schema.NewError(schema.ErrCodeValidation, "token must include refresh_token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader([]byte(`{}`)))
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "refresh_token")
}

func TestCreateSchedule(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"name":            "weekly publish",
		"action":          "blog_publish_post",
		"params":          map[string]any{"blog_id": "42", "post_id": "p1"},
		"cron_expression": "0 9 * * 1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sp store.ScheduledPublish
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sp))
	assert.NotEmpty(t, sp.ID)
	assert.True(t, sp.Enabled, "enabled defaults to true")
	require.NotNil(t, sp.NextRunAt)

	stored, err := f.store.GetScheduledPublish(context.Background(), sp.ID)
	require.NoError(t, err)
	assert.Equal(t, "weekly publish", stored.Name)
}

func TestCreateScheduleValidation(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"cron_expression": "0 9 * * 1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"action": "blog_publish_post",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"action":          "blog_publish_post",
		"cron_expression": "not a cron",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "invalid cron expression")

	rec = doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"action":          "blog_delete_everything",
		"cron_expression": "0 9 * * 1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSchedulesFilter(t *testing.T) {
	f := newTestServer(t)

	doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"action":          "blog_publish_post",
		"cron_expression": "0 9 * * 1",
	})
	doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"action":          "blog_list_blogs",
		"cron_expression": "0 0 * * *",
		"enabled":         false,
	})

	rec := doRequest(t, f.handler, http.MethodGet, "/api/v1/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Schedules []*store.ScheduledPublish `json:"schedules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Schedules, 2)

	rec = doRequest(t, f.handler, http.MethodGet, "/api/v1/schedules?enabled=true", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Schedules, 1)
	assert.Equal(t, "blog_publish_post", body.Schedules[0].Action)

	rec = doRequest(t, f.handler, http.MethodGet, "/api/v1/schedules?action=blog_list_blogs", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Schedules, 1)
	assert.Equal(t, "blog_list_blogs", body.Schedules[0].Action)
}

func TestListSchedulesEmpty(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodGet, "/api/v1/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"schedules":[]}`, rec.Body.String())
}

func TestGetScheduleNotFound(t *testing.T) {
	f := newTestServer(t)
	rec := doRequest(t, f.handler, http.MethodGet, "/api/v1/schedules/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSchedule(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"action":          "blog_publish_post",
		"cron_expression": "0 9 * * 1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created store.ScheduledPublish
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(t, f.handler, http.MethodPut, "/api/v1/schedules/"+created.ID, map[string]any{
		"name":            "renamed",
		"cron_expression": "0 18 * * 5",
		"enabled":         false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated store.ScheduledPublish
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "0 18 * * 5", updated.CronExpression)
	assert.False(t, updated.Enabled)
	require.NotNil(t, updated.NextRunAt)
	assert.NotEqual(t, created.NextRunAt, updated.NextRunAt)
}

func TestUpdateScheduleValidation(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(t, f.handler, http.MethodPut, "/api/v1/schedules/missing", map[string]any{
		"name": "renamed",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	created := doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"action":          "blog_publish_post",
		"cron_expression": "0 9 * * 1",
	})
	var sp store.ScheduledPublish
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &sp))

	rec = doRequest(t, f.handler, http.MethodPut, "/api/v1/schedules/"+sp.ID, map[string]any{
		"action": "blog_delete_everything",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, f.handler, http.MethodPut, "/api/v1/schedules/"+sp.ID, map[string]any{
		"cron_expression": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteSchedule(t *testing.T) {
	f := newTestServer(t)

	created := doRequest(t, f.handler, http.MethodPost, "/api/v1/schedules", map[string]any{
		"action":          "blog_publish_post",
		"cron_expression": "0 9 * * 1",
	})
	var sp store.ScheduledPublish
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &sp))

	rec := doRequest(t, f.handler, http.MethodDelete, "/api/v1/schedules/"+sp.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, f.handler, http.MethodDelete, "/api/v1/schedules/"+sp.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
