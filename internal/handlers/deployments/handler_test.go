package deployments

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/stackpilot/stackpilot/internal/database"
	"github.com/stackpilot/stackpilot/internal/history"
	"github.com/stackpilot/stackpilot/internal/models"
)

type submitted struct {
	kind      models.DeploymentKind
	service   string
	env       models.Environment
	confirmed bool
}

func newTestApp(t *testing.T) (*fiber.App, *history.Store, *[]submitted) {
	t.Helper()
	db, err := database.OpenEphemeral()
	if err != nil {
		t.Fatalf("open ephemeral database: %v", err)
	}
	store := history.New(db)

	var calls []submitted
	h := &Handler{
		Store: store,
		Submit: func(kind models.DeploymentKind, service string, env models.Environment, confirmed bool) (string, error) {
			calls = append(calls, submitted{kind, service, env, confirmed})
			return "ticket-1", nil
		},
	}

	app := fiber.New()
	app.Post("/deploy/all", h.DeployAll)
	app.Post("/deploy/backend", h.DeployBackend)
	app.Post("/deploy/service/:name", h.DeployService)
	app.Get("/history", h.History)
	app.Get("/stats", h.Stats)
	return app, store, &calls
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("decode body %q: %v", raw, err)
	}
	return resp, envelope
}

func TestDeployBackendAccepted(t *testing.T) {
	app, _, calls := newTestApp(t)

	resp, envelope := doRequest(t, app, "POST", "/deploy/backend?env=stage", "")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if envelope["success"] != true {
		t.Fatalf("expected success envelope, got %v", envelope)
	}
	data := envelope["data"].(map[string]interface{})
	if data["ticket"] != "ticket-1" {
		t.Fatalf("ticket = %v", data["ticket"])
	}
	if len(*calls) != 1 || (*calls)[0].kind != models.DeploymentKindBackend || (*calls)[0].env != models.EnvironmentStage {
		t.Fatalf("unexpected submission: %+v", *calls)
	}
}

func TestDeployServicePassesName(t *testing.T) {
	app, _, calls := newTestApp(t)

	resp, _ := doRequest(t, app, "POST", "/deploy/service/scraper-worker", "")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(*calls) != 1 || (*calls)[0].service != "scraper-worker" {
		t.Fatalf("unexpected submission: %+v", *calls)
	}
}

func TestProductionRequiresConfirmBody(t *testing.T) {
	app, _, calls := newTestApp(t)

	resp, envelope := doRequest(t, app, "POST", "/deploy/all?env=production", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("unconfirmed production deploy: status = %d, want 400", resp.StatusCode)
	}
	if envelope["success"] != false {
		t.Fatalf("expected error envelope, got %v", envelope)
	}
	if len(*calls) != 0 {
		t.Fatalf("unconfirmed production deploy must not be submitted")
	}

	resp, _ = doRequest(t, app, "POST", "/deploy/all?env=production", `{"confirm": true}`)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("confirmed production deploy: status = %d, want 202", resp.StatusCode)
	}
	if len(*calls) != 1 || !(*calls)[0].confirmed {
		t.Fatalf("confirmed flag lost: %+v", *calls)
	}
}

func TestTriggerRejectsUnknownEnvironment(t *testing.T) {
	app, _, calls := newTestApp(t)

	resp, _ := doRequest(t, app, "POST", "/deploy/backend?env=qa", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if len(*calls) != 0 {
		t.Fatalf("invalid environment must not be submitted")
	}
}

func TestHistoryAndStats(t *testing.T) {
	app, store, _ := newTestApp(t)

	id, err := store.Create(history.Draft{
		Environment: models.EnvironmentDevelopment,
		Kind:        models.DeploymentKindBackend,
		User:        "tester",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Finalize(id, models.DeploymentStatusSuccess, nil, nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	resp, envelope := doRequest(t, app, "GET", "/history", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	records := envelope["data"].([]interface{})
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	resp, envelope = doRequest(t, app, "GET", "/stats", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	stats := envelope["data"].(map[string]interface{})
	if stats["total"].(float64) != 1 || stats["successRate"].(float64) != 100 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	resp, _ = doRequest(t, app, "GET", "/history?env=qa", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("invalid env filter: status = %d, want 400", resp.StatusCode)
	}
}
