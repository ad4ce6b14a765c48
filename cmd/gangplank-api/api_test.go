package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gangplankhq/gangplank/pkg/counters"
	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence/file"
)

func setupTestApp(tempDir string) *fiber.App {
	persistence := file.NewPersistence(tempDir)

	api := NewAPI(slog.Default(), persistence, nil, nil)

	return api.App()
}

func TestAPI_CounterWiring(t *testing.T) {
	api := NewAPI(slog.Default(), file.NewPersistence(t.TempDir()), nil, nil)
	assert.Nil(t, api.counterSource())
	assert.Nil(t, api.counterSink())

	// A configured counter store serves both the analytics read path and the
	// synchronous ingest write path.
	store := counters.NewCounters(nil, slog.Default())
	api = NewAPI(slog.Default(), file.NewPersistence(t.TempDir()), nil, store)
	assert.NotNil(t, api.counterSource())
	assert.NotNil(t, api.counterSink())
}

func jsonRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Accept", "application/json")

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Gangplank API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestAPI_GetFlows_Empty(t *testing.T) {
	app := setupTestApp(t.TempDir())

	resp, err := app.Test(jsonRequest(http.MethodGet, "/flows", ""))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Flows      []models.Flow `json:"flows"`
		TotalCount int64         `json:"total_count"`
	}

	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Empty(t, result.Flows)
	assert.Zero(t, result.TotalCount)
}

func TestAPI_CreateAndGetFlow(t *testing.T) {
	app := setupTestApp(t.TempDir())

	createBody := `{
		"name": "Starter Onboarding",
		"description": "First steps",
		"owner": "platform-team",
		"categories": [
			{"id": "setup", "name": "Setup", "tasks": [
				{"id": "create-project", "title": "Create a project", "required": true, "completion_type": "manual"}
			]}
		]
	}`

	resp, err := app.Test(jsonRequest(http.MethodPost, "/flows", createBody))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Flow

	err = json.NewDecoder(resp.Body).Decode(&created)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.FlowStatusDraft, created.Status)
	assert.Equal(t, models.FlowScopeGlobal, created.Scope)

	resp, err = app.Test(jsonRequest(http.MethodGet, "/flows/"+created.ID, ""))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Flow

	err = json.NewDecoder(resp.Body).Decode(&fetched)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "Starter Onboarding", fetched.Name)
	require.Len(t, fetched.Categories, 1)
	assert.Equal(t, "create-project", fetched.Categories[0].Tasks[0].ID)
}

func TestAPI_CreateFlow_ValidationError(t *testing.T) {
	app := setupTestApp(t.TempDir())

	// Name below the minimum length
	resp, err := app.Test(jsonRequest(http.MethodPost, "/flows", `{"name": "ab", "owner": "x"}`))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetFlow_NotFound(t *testing.T) {
	app := setupTestApp(t.TempDir())

	resp, err := app.Test(jsonRequest(http.MethodGet, "/flows/missing-flow", ""))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ImportFlow(t *testing.T) {
	app := setupTestApp(t.TempDir())

	document := `{
		"name": "Imported Onboarding",
		"scope": "global",
		"categories": [
			{"id": "setup", "name": "Setup", "tasks": [
				{"id": "t1", "title": "First task", "completion_type": "auto"}
			]}
		]
	}`

	resp, err := app.Test(jsonRequest(http.MethodPost, "/flows/import", document))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Schema violations are rejected up front
	resp, err = app.Test(jsonRequest(http.MethodPost, "/flows/import", `{"name": "No Categories"}`))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_PublishAndResolveFlow(t *testing.T) {
	app := setupTestApp(t.TempDir())

	createBody := `{
		"name": "Global Onboarding",
		"owner": "platform-team",
		"categories": [
			{"id": "setup", "name": "Setup", "tasks": [
				{"id": "t1", "title": "First task", "required": true, "completion_type": "manual"}
			]}
		]
	}`

	resp, err := app.Test(jsonRequest(http.MethodPost, "/flows", createBody))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	var created models.Flow

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	// Before publishing no tenant resolves a flow
	resp, err = app.Test(jsonRequest(http.MethodGet, "/tenants/acme/effective-flow", ""))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	publishReq := jsonRequest(http.MethodPost, "/flows/"+created.ID+"/publish", "")
	publishReq.Header.Set("X-Actor", "admin")

	resp, err = app.Test(publishReq)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var published models.Flow

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&published))
	assert.Equal(t, models.FlowStatusPublished, published.Status)

	resp, err = app.Test(jsonRequest(http.MethodGet, "/tenants/acme/effective-flow", ""))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var effective models.EffectiveFlow

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&effective))
	assert.Equal(t, created.ID, effective.Flow.ID)
	assert.False(t, effective.OverrideApplied)
	require.Len(t, effective.Tasks, 1)
}

func TestAPI_StatusLifecycle(t *testing.T) {
	app := setupTestApp(t.TempDir())

	createBody := `{
		"name": "Status Onboarding",
		"owner": "platform-team",
		"categories": [
			{"id": "setup", "name": "Setup", "tasks": [
				{"id": "t1", "title": "First task", "completion_type": "manual"},
				{"id": "t2", "title": "Second task", "completion_type": "manual"}
			]}
		]
	}`

	resp, err := app.Test(jsonRequest(http.MethodPost, "/flows", createBody))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	var created models.Flow

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	setBody := `{"flow_id": "` + created.ID + `", "task_id": "t1", "status": "complete"}`

	resp, err = app.Test(jsonRequest(http.MethodPut, "/tenants/acme/users/user-1/statuses", setBody))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodGet, "/tenants/acme/users/user-1/statuses?flow_id="+created.ID, ""))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var progress struct {
		Statuses       []models.TaskStatus `json:"statuses"`
		CompletionRate float64             `json:"completion_rate"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&progress))
	require.Len(t, progress.Statuses, 1)
	assert.Equal(t, models.TaskStateComplete, progress.Statuses[0].Status)
	assert.InDelta(t, 0.5, progress.CompletionRate, 0.001)

	// Unknown task is rejected
	resp, err = app.Test(jsonRequest(http.MethodPut, "/tenants/acme/users/user-1/statuses",
		`{"flow_id": "`+created.ID+`", "task_id": "ghost", "status": "complete"}`))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Reset wipes progress and reports removed rows
	resp, err = app.Test(jsonRequest(http.MethodPost, "/tenants/acme/users/user-1/reset", ""))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var reset struct {
		RowsRemoved int64 `json:"rows_removed"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reset))
	assert.EqualValues(t, 1, reset.RowsRemoved)
}

func TestAPI_RecordEvent_Synchronous(t *testing.T) {
	app := setupTestApp(t.TempDir())

	// Without an event bus the event is stored synchronously
	body := `{"type": "wizard_opened", "flow_id": "flow-1", "tenant_id": "acme", "user_id": "user-1"}`

	resp, err := app.Test(jsonRequest(http.MethodPost, "/events", body))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/events", `{"type": "task_clicked"}`))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetActivation(t *testing.T) {
	app := setupTestApp(t.TempDir())

	resp, err := app.Test(jsonRequest(http.MethodGet, "/tenants/acme/users/user-1/activation", ""))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Activated bool   `json:"activated"`
		Reason    string `json:"reason"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.False(t, result.Activated)
	assert.Equal(t, "no_published_flow", result.Reason)
}

func TestAPI_CORS_Headers(t *testing.T) {
	app := setupTestApp(t.TempDir())

	req := httptest.NewRequest(http.MethodOptions, "/flows", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
