package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smshub/internal/api"
	"smshub/internal/domain"
	"smshub/internal/repository/memory"
	"smshub/internal/tenant"
)

const subscriptionKey = "tenant-a"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *tenant.Registry {
	t.Helper()
	reg, err := tenant.LoadFromJSON([]byte(`{
		"tenants": [{
			"subscriptionKey": "tenant-a",
			"http": {"endpoint": "http://example.invalid", "maxRetries": 1, "maxRequestsPerSecond": 10}
		}]
	}`))
	require.NoError(t, err)
	return reg
}

type fakePublisher struct {
	fail bool
}

func (p *fakePublisher) Publish(ctx context.Context, event domain.QueuedEvent) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	return nil
}

func newTestApp(t *testing.T, pub *fakePublisher) (*fiber.App, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	handler := api.NewHandler(repo, pub, testRegistry(t), discardLogger())
	app := fiber.New()
	handler.Register(app)
	return app, repo
}

func doJSON(t *testing.T, app *fiber.App, method, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("ocp-apim-subscription-key", key)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	b, _ := io.ReadAll(resp.Body)
	rec.Body.Write(b)
	return rec
}

func TestSubmitMessageRequiresAuth(t *testing.T) {
	app, _ := newTestApp(t, &fakePublisher{})
	rec := doJSON(t, app, "POST", "/api/message", "", `{"recipient":"+1","message":"hi","channelType":"HTTP"}`)
	assert.Equal(t, fiber.StatusUnauthorized, rec.Code)
}

func TestSubmitMessageRejectsUnknownKey(t *testing.T) {
	app, _ := newTestApp(t, &fakePublisher{})
	rec := doJSON(t, app, "POST", "/api/message", "does-not-exist", `{"recipient":"+1","message":"hi","channelType":"HTTP"}`)
	assert.Equal(t, fiber.StatusUnauthorized, rec.Code)
}

func TestSubmitMessageSuccess(t *testing.T) {
	app, repo := newTestApp(t, &fakePublisher{})
	rec := doJSON(t, app, "POST", "/api/message", subscriptionKey, `{"recipient":"+15551234567","message":"hi","channelType":"HTTP"}`)
	require.Equal(t, fiber.StatusOK, rec.Code)

	var resp struct {
		MessageID string `json:"messageId"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Queued", resp.Status)

	msgs, err := repo.ListForTenant(context.Background(), subscriptionKey, "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestSubmitMessageRejectsUnconfiguredChannel(t *testing.T) {
	app, _ := newTestApp(t, &fakePublisher{})
	rec := doJSON(t, app, "POST", "/api/message", subscriptionKey, `{"recipient":"+1","message":"hi","channelType":"SMPP"}`)
	assert.Equal(t, fiber.StatusBadRequest, rec.Code)
}

func TestSubmitMessageFailsClosedWhenQueuePublishFails(t *testing.T) {
	app, repo := newTestApp(t, &fakePublisher{fail: true})
	rec := doJSON(t, app, "POST", "/api/message", subscriptionKey, `{"recipient":"+1","message":"hi","channelType":"HTTP"}`)
	require.Equal(t, fiber.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Failed", resp.Status)

	msgs, err := repo.ListForTenant(context.Background(), subscriptionKey, domain.StatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestSubmitBatchAggregatesCounts(t *testing.T) {
	app, _ := newTestApp(t, &fakePublisher{})
	body := `{"messages":[
		{"recipient":"+1","message":"a","channelType":"HTTP"},
		{"recipient":"+2","message":"b","channelType":"SMPP"}
	]}`
	rec := doJSON(t, app, "POST", "/api/messages", subscriptionKey, body)
	require.Equal(t, fiber.StatusOK, rec.Code)

	var resp struct {
		TotalCount   int `json:"totalCount"`
		SuccessCount int `json:"successCount"`
		FailedCount  int `json:"failedCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalCount)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Equal(t, 1, resp.FailedCount)
}

func TestSubmitBatchRejectsEmpty(t *testing.T) {
	app, _ := newTestApp(t, &fakePublisher{})
	rec := doJSON(t, app, "POST", "/api/messages", subscriptionKey, `{"messages":[]}`)
	assert.Equal(t, fiber.StatusBadRequest, rec.Code)
}

func TestGetStatusScopesToTenant(t *testing.T) {
	app, repo := newTestApp(t, &fakePublisher{})
	m := domain.NewMessage(subscriptionKey, "+1", "hi", domain.ChannelHTTP)
	require.NoError(t, repo.Insert(context.Background(), m))

	rec := doJSON(t, app, "GET", "/api/messages/"+m.ID.String()+"/status", subscriptionKey, "")
	assert.Equal(t, fiber.StatusOK, rec.Code)

	rec = doJSON(t, app, "GET", "/api/messages/"+m.ID.String()+"/status", "other-tenant", "")
	assert.Equal(t, fiber.StatusUnauthorized, rec.Code)

	other := domain.NewMessage("tenant-b", "+2", "hi", domain.ChannelHTTP)
	require.NoError(t, repo.Insert(context.Background(), other))
	rec = doJSON(t, app, "GET", "/api/messages/"+other.ID.String()+"/status", subscriptionKey, "")
	assert.Equal(t, fiber.StatusNotFound, rec.Code)
}

func TestGetStatusNotFound(t *testing.T) {
	app, _ := newTestApp(t, &fakePublisher{})
	rec := doJSON(t, app, "GET", "/api/messages/00000000-0000-0000-0000-000000000000/status", subscriptionKey, "")
	assert.Equal(t, fiber.StatusNotFound, rec.Code)
}

func TestHistoryFiltersByStatus(t *testing.T) {
	app, repo := newTestApp(t, &fakePublisher{})
	m := domain.NewMessage(subscriptionKey, "+1", "hi", domain.ChannelHTTP)
	require.NoError(t, repo.Insert(context.Background(), m))

	rec := doJSON(t, app, "GET", "/api/messages/history?status=Queued", subscriptionKey, "")
	require.Equal(t, fiber.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
}

func TestPingIsUnauthenticated(t *testing.T) {
	app, _ := newTestApp(t, &fakePublisher{})
	rec := doJSON(t, app, "GET", "/ping", "", "")
	assert.Equal(t, fiber.StatusOK, rec.Code)
	assert.Equal(t, "Service is alive", rec.Body.String())
}
