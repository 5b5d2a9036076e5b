package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ehr/allergy/internal/config"
	"github.com/ehr/allergy/internal/domain/allergy"
	"github.com/ehr/allergy/internal/platform/auth"
	"github.com/ehr/allergy/internal/platform/events"
	"github.com/ehr/allergy/internal/platform/kv"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                   "development",
		StoreDriver:           kv.DriverMemory,
		EventSink:             config.SinkNone,
		RateLimitRPS:          50,
		RateLimitBurst:        100,
		RequestTimeoutSeconds: 5,
		CORSOrigins:           []string{"http://localhost:3000"},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, authz allergy.Authorizer) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, zerolog.Nop(), authz)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func do(e http.Handler, method, path, body, principal, roles string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if principal != "" {
		req.Header.Set(auth.PrincipalHeader, principal)
	}
	if roles != "" {
		req.Header.Set(auth.RolesHeader, roles)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// seed
// ---------------------------------------------------------------------------

func TestParseSeed_Pairs(t *testing.T) {
	seed, err := parseSeed(strings.NewReader(`
cross_sensitivities:
  - drug_a: Penicillin
    drug_b: Amoxicillin
  - drug_a: Aspirin
    drug_b: Ibuprofen
`))
	if err != nil {
		t.Fatalf("parseSeed: %v", err)
	}
	if len(seed.CrossSensitivities) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(seed.CrossSensitivities))
	}
	if p := seed.CrossSensitivities[1]; p.DrugA != "Aspirin" || p.DrugB != "Ibuprofen" {
		t.Errorf("unexpected second pair: %+v", p)
	}
}

func TestParseSeed_Empty(t *testing.T) {
	seed, err := parseSeed(strings.NewReader(""))
	if err != nil {
		t.Fatalf("parseSeed: %v", err)
	}
	if len(seed.CrossSensitivities) != 0 {
		t.Errorf("expected no pairs, got %d", len(seed.CrossSensitivities))
	}
}

func TestParseSeed_UnknownField(t *testing.T) {
	_, err := parseSeed(strings.NewReader("pairs:\n  - drug_a: A\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadSeedFile_Missing(t *testing.T) {
	if _, err := loadSeedFile(t.TempDir() + "/missing.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadSeedFile_Bundled(t *testing.T) {
	seed, err := loadSeedFile("../../seed/cross_sensitivities.yaml")
	if err != nil {
		t.Fatalf("loadSeedFile: %v", err)
	}
	if len(seed.CrossSensitivities) == 0 {
		t.Error("bundled seed has no pairs")
	}
}

func TestImportSeed_RegistersPairs(t *testing.T) {
	a := newTestApp(t, testConfig(), auth.SystemAuthorizer{})
	ctx := context.Background()
	seed := &seedFile{CrossSensitivities: []seedPair{
		{DrugA: "Penicillin", DrugB: "Amoxicillin"},
		{DrugA: "Penicillin", DrugB: "Cephalexin"},
	}}

	n, err := importSeed(ctx, a.svc, "admin-1", seed)
	if err != nil {
		t.Fatalf("importSeed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}

	related, err := a.svc.RelatedDrugs(ctx, "Penicillin")
	if err != nil {
		t.Fatalf("RelatedDrugs: %v", err)
	}
	if len(related) != 2 || related[0] != "Amoxicillin" || related[1] != "Cephalexin" {
		t.Errorf("unexpected related drugs: %v", related)
	}
	back, _ := a.svc.RelatedDrugs(ctx, "Cephalexin")
	if len(back) != 1 || back[0] != "Penicillin" {
		t.Errorf("expected reverse link, got %v", back)
	}
}

func TestImportSeed_StopsAtInvalidPair(t *testing.T) {
	a := newTestApp(t, testConfig(), auth.SystemAuthorizer{})
	seed := &seedFile{CrossSensitivities: []seedPair{
		{DrugA: "Penicillin", DrugB: "Amoxicillin"},
		{DrugA: "Aspirin", DrugB: ""},
		{DrugA: "Aspirin", DrugB: "Ibuprofen"},
	}}

	n, err := importSeed(context.Background(), a.svc, "admin-1", seed)
	if !errors.Is(err, allergy.ErrInvalidAllergen) {
		t.Fatalf("expected ErrInvalidAllergen, got %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 imported before failure, got %d", n)
	}
	related, _ := a.svc.RelatedDrugs(context.Background(), "Aspirin")
	if len(related) != 0 {
		t.Errorf("pairs after the failure should not be imported, got %v", related)
	}
}

// ---------------------------------------------------------------------------
// app wiring
// ---------------------------------------------------------------------------

func TestOpenSink_None(t *testing.T) {
	cfg := testConfig()
	sink, closer, err := openSink(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openSink: %v", err)
	}
	if _, ok := sink.(events.Discard); !ok {
		t.Errorf("expected Discard sink, got %T", sink)
	}
	if closer != nil {
		t.Error("expected no closer for none sink")
	}
}

func TestOpenSink_Log(t *testing.T) {
	cfg := testConfig()
	cfg.EventSink = config.SinkLog
	sink, _, err := openSink(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openSink: %v", err)
	}
	if _, ok := sink.(*events.LogSink); !ok {
		t.Errorf("expected *LogSink, got %T", sink)
	}
}

func TestOpenSink_Webhook(t *testing.T) {
	cfg := testConfig()
	cfg.EventSink = config.SinkWebhook
	cfg.WebhookURL = "https://hooks.example.com/allergy"
	cfg.WebhookSecret = "secret"
	sink, closer, err := openSink(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openSink: %v", err)
	}
	if _, ok := sink.(*events.WebhookSink); !ok {
		t.Errorf("expected *WebhookSink, got %T", sink)
	}
	if closer != nil {
		t.Error("expected no closer for webhook sink")
	}
}

func TestOpenSink_Unknown(t *testing.T) {
	cfg := testConfig()
	cfg.EventSink = "kafka"
	if _, _, err := openSink(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown sink")
	}
}

func TestNewApp_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = "cassandra"
	if _, err := newApp(context.Background(), cfg, zerolog.Nop(), auth.SystemAuthorizer{}); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}

func TestNewApp_SuspectedPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.UnverifiedAsSuspected = true
	a := newTestApp(t, cfg, auth.SystemAuthorizer{})
	ctx := context.Background()

	id, err := a.svc.RecordAllergy(ctx, allergy.NewAllergy{
		PatientID:    "patient-1",
		ProviderID:   "dr-1",
		Allergen:     "Peanut",
		AllergenType: "food",
		Severity:     "moderate",
	})
	if err != nil {
		t.Fatalf("RecordAllergy: %v", err)
	}
	rec, err := a.svc.GetAllergy(ctx, id)
	if err != nil {
		t.Fatalf("GetAllergy: %v", err)
	}
	if rec.Status != allergy.StatusSuspected {
		t.Errorf("expected suspected, got %s", rec.Status)
	}
}

// ---------------------------------------------------------------------------
// HTTP server
// ---------------------------------------------------------------------------

func TestServer_Health(t *testing.T) {
	e := newServer(newTestApp(t, testConfig(), auth.ContextAuthorizer{}))

	rec := do(e, http.MethodGet, "/health", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != version {
		t.Errorf("unexpected body: %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestServer_Metrics(t *testing.T) {
	a := newTestApp(t, testConfig(), auth.ContextAuthorizer{})
	e := newServer(a)

	if rec := do(e, http.MethodGet, "/api/v1/cross-sensitivities/Penicillin", "", "rx-1", "pharmacist"); rec.Code != http.StatusOK {
		t.Fatalf("related: expected 200, got %d", rec.Code)
	}
	rec := do(e, http.MethodGet, "/metrics", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `allergy_operations_total{op="related",outcome="ok"} 1`) {
		t.Errorf("metrics missing related counter:\n%s", rec.Body.String())
	}
}

func TestServer_JWTRequiredOutsideDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = "secret"
	e := newServer(newTestApp(t, cfg, auth.ContextAuthorizer{}))

	if rec := do(e, http.MethodGet, "/api/v1/allergies/1", "", "dr-1", "physician"); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/health", "", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health should stay public, got %d", rec.Code)
	}
}

func TestServer_RecordRegisterAndCheck(t *testing.T) {
	e := newServer(newTestApp(t, testConfig(), auth.ContextAuthorizer{}))

	rec := do(e, http.MethodPost, "/api/v1/allergies",
		`{"patient_id":"patient-1","allergen":"Penicillin","allergen_type":"medication","reaction_types":["hives"],"severity":"severe","verified":true}`,
		"dr-1", "physician")
	if rec.Code != http.StatusCreated {
		t.Fatalf("record: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/v1/cross-sensitivities",
		`{"drug_a":"Penicillin","drug_b":"Amoxicillin"}`, "admin-1", "admin")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("register: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/v1/patients/patient-1/interactions?drug=Amoxicillin", "", "rx-1", "pharmacist")
	if rec.Code != http.StatusOK {
		t.Fatalf("check: expected 200, got %d", rec.Code)
	}
	var warnings []allergy.InteractionWarning
	if err := json.Unmarshal(rec.Body.Bytes(), &warnings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Allergen != "Penicillin" || warnings[0].Severity != allergy.SeveritySevere {
		t.Errorf("unexpected warnings: %+v", warnings)
	}
}

func TestServer_RegisterRequiresAdminRole(t *testing.T) {
	e := newServer(newTestApp(t, testConfig(), auth.ContextAuthorizer{}))

	rec := do(e, http.MethodPost, "/api/v1/cross-sensitivities",
		`{"drug_a":"Penicillin","drug_b":"Amoxicillin"}`, "dr-1", "physician")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
