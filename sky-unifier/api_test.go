package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/sky-unifier/sky-unifier-go/internal/archive/skyview"
	"github.com/sky-unifier/sky-unifier-go/internal/artifacts"
	"github.com/sky-unifier/sky-unifier-go/internal/catalog"
	"github.com/sky-unifier/sky-unifier-go/internal/platform/apispec"
	"github.com/sky-unifier/sky-unifier-go/internal/render"
	"github.com/sky-unifier/sky-unifier-go/internal/renderlog"
	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

type stubRenderer struct {
	mu     sync.Mutex
	calls  int
	got    sky.RenderRequest
	result render.Result
	err    error
}

func (s *stubRenderer) RenderAll(_ context.Context, req sky.RenderRequest) (render.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.got = req
	return s.result, s.err
}

type stubCatalog struct {
	cat        catalog.Catalog
	refreshErr error
}

func (s stubCatalog) Get(context.Context) catalog.Catalog { return s.cat }

func (s stubCatalog) Refresh(context.Context) (catalog.Catalog, error) {
	if s.refreshErr != nil {
		return catalog.Catalog{}, s.refreshErr
	}
	return s.cat, nil
}

type stubRecorder struct {
	mu      sync.Mutex
	entries []renderlog.Entry
	err     error
}

func (s *stubRecorder) Record(_ context.Context, e renderlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

type testEnv struct {
	mux      *http.ServeMux
	renderer *stubRenderer
	store    *artifacts.FileStore
	ledger   *stubRecorder
}

func newTestEnv(t *testing.T, cat stubCatalog) testEnv {
	t.Helper()
	spec, err := apispec.Load(context.Background())
	if err != nil {
		t.Fatalf("apispec.Load() err=%v", err)
	}
	env := testEnv{
		mux:      http.NewServeMux(),
		renderer: &stubRenderer{},
		store:    artifacts.NewFileStore(memfs.New()),
		ledger:   &stubRecorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := newSkyUnifierAPI(logger, spec, env.renderer, env.store, cat, env.ledger, 1.5, "test")
	api.register(env.mux)
	return env
}

func (e testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json.Unmarshal() err=%v body=%s", err, rec.Body.String())
	}
	return out
}

func sampleResult() render.Result {
	layer := sky.LayerArtifact{
		ID:       "0123abcd",
		SourceID: "DSS",
		ImageKey: "0123abcd.png",
		RawKey:   "0123abcd.f32.snp",
		Min:      1,
		Max:      9,
	}
	failure := sky.LayerFailure{SourceID: "JWST", Cause: "No JWST observations found in this region"}
	return render.Result{
		Layers:   []sky.LayerArtifact{layer},
		Failures: []sky.LayerFailure{failure},
		Outcomes: []sky.LayerOutcome{
			{Index: 0, Artifact: &layer},
			{Index: 1, Failure: &failure},
		},
		Grid:        sky.TargetGrid{Size: 360},
		Fingerprint: strings.Repeat("ab", 32),
	}
}

func TestRender_AppliesDefaults(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	env.renderer.result = sampleResult()

	rec := env.do(http.MethodPost, "/render", `{"ra":10.68,"dec":41.27,"surveys":["DSS","JWST"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}

	got := env.renderer.got
	if got.SizeDeg != defaultSizeDeg {
		t.Fatalf("SizeDeg=%v, want %v", got.SizeDeg, defaultSizeDeg)
	}
	if got.PixelScale != 1.5 {
		t.Fatalf("PixelScale=%v, want 1.5", got.PixelScale)
	}
	if got.Stretch != sky.StretchSqrt {
		t.Fatalf("Stretch=%q, want %q", got.Stretch, sky.StretchSqrt)
	}
	if len(got.Sources) != 2 {
		t.Fatalf("len(Sources)=%d, want 2", len(got.Sources))
	}
	if _, ok := got.Sources[1].(sky.MissionSource); !ok {
		t.Fatalf("Sources[1]=%T, want sky.MissionSource", got.Sources[1])
	}
}

func TestRender_ResponseShape(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	env.renderer.result = sampleResult()

	rec := env.do(http.MethodPost, "/render", `{"ra":10.68,"dec":41.27,"size_deg":0.25,"surveys":["DSS","JWST"],"stretch":"log","pixel_scale":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var out renderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json.Unmarshal() err=%v", err)
	}
	if len(out.Layers) != 1 || len(out.Errors) != 1 {
		t.Fatalf("layers=%d errors=%d, want 1 and 1", len(out.Layers), len(out.Errors))
	}
	l := out.Layers[0]
	if l.ID != "0123abcd" || l.Survey != "DSS" {
		t.Fatalf("layer=%+v", l)
	}
	if l.URL != "/layer/0123abcd.png" {
		t.Fatalf("url=%q, want /layer/0123abcd.png", l.URL)
	}
	if l.RawURL != "/layer/0123abcd.f32.snp" {
		t.Fatalf("raw_url=%q", l.RawURL)
	}
	if l.Min == nil || *l.Min != 1 || l.Max == nil || *l.Max != 9 {
		t.Fatalf("min/max=%v/%v, want 1/9", l.Min, l.Max)
	}
	if out.Errors[0].Survey != "JWST" || out.Errors[0].Error == "" {
		t.Fatalf("errors[0]=%+v", out.Errors[0])
	}

	got := env.renderer.got
	if got.SizeDeg != 0.25 || got.PixelScale != 2 || got.Stretch != sky.StretchLog {
		t.Fatalf("request=%+v", got)
	}
}

func TestRender_NaNRangeIsNull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	res := sampleResult()
	res.Layers[0].Min = math.NaN()
	res.Layers[0].Max = math.NaN()
	env.renderer.result = res

	rec := env.do(http.MethodPost, "/render", `{"ra":1,"dec":2,"surveys":["DSS"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	layer := body["layers"].([]any)[0].(map[string]any)
	if v, ok := layer["min"]; !ok || v != nil {
		t.Fatalf("min=%v, want null", v)
	}
	if v, ok := layer["max"]; !ok || v != nil {
		t.Fatalf("max=%v, want null", v)
	}
}

func TestRender_EmptyListsAreArrays(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	env.renderer.result = render.Result{Grid: sky.TargetGrid{Size: 10}, Fingerprint: "f"}

	rec := env.do(http.MethodPost, "/render", `{"ra":1,"dec":2,"surveys":["DSS"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"layers":[]`) || !strings.Contains(rec.Body.String(), `"errors":[]`) {
		t.Fatalf("body=%s, want empty arrays", rec.Body.String())
	}
}

func TestRender_RejectsBadBodies(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown field":    `{"ra":1,"dec":2,"surveys":["DSS"],"colour":"red"}`,
		"missing surveys":  `{"ra":1,"dec":2}`,
		"dec out of range": `{"ra":1,"dec":95,"surveys":["DSS"]}`,
		"bad stretch":      `{"ra":1,"dec":2,"surveys":["DSS"],"stretch":"cubic"}`,
		"negative size":    `{"ra":1,"dec":2,"size_deg":-1,"surveys":["DSS"]}`,
		"empty survey":     `{"ra":1,"dec":2,"surveys":[""]}`,
		"trailing value":   `{"ra":1,"dec":2,"surveys":["DSS"]} {}`,
		"not json":         `ra=1`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, stubCatalog{})
			rec := env.do(http.MethodPost, "/render", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status=%d, want %d body=%s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			if env.renderer.calls != 0 {
				t.Fatalf("renderer calls=%d, want 0", env.renderer.calls)
			}
			if got := decodeBody(t, rec)["request_id"]; got != "req-1" {
				t.Fatalf("request_id=%v, want req-1", got)
			}
		})
	}
}

func TestRender_InvalidRequestFromOrchestrator(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	env.renderer.err = fmt.Errorf("%w: size_deg too large (max 2 deg)", sky.ErrInvalidRequest)

	rec := env.do(http.MethodPost, "/render", `{"ra":1,"dec":2,"size_deg":5,"surveys":["DSS"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusBadRequest)
	}
	body := decodeBody(t, rec)
	if body["error"] != "invalid_request" {
		t.Fatalf("error=%v, want invalid_request", body["error"])
	}
	if !strings.Contains(fmt.Sprint(body["detail"]), "size_deg too large") {
		t.Fatalf("detail=%v", body["detail"])
	}
	if len(env.ledger.entries) != 0 {
		t.Fatalf("ledger entries=%d, want 0", len(env.ledger.entries))
	}
}

func TestRender_InternalError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	env.renderer.err = errors.New("boom")

	rec := env.do(http.MethodPost, "/render", `{"ra":1,"dec":2,"surveys":["DSS"]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("body leaks internal error: %s", rec.Body.String())
	}
}

func TestRender_RecordsLedgerEntry(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	env.renderer.result = sampleResult()

	rec := env.do(http.MethodPost, "/render", `{"ra":1,"dec":2,"surveys":["DSS","JWST"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if len(env.ledger.entries) != 1 {
		t.Fatalf("ledger entries=%d, want 1", len(env.ledger.entries))
	}
	e := env.ledger.entries[0]
	if err := e.Validate(); err != nil {
		t.Fatalf("entry.Validate() err=%v", err)
	}
	if e.GridSize != 360 || len(e.Outcomes) != 2 {
		t.Fatalf("entry=%+v", e)
	}
	if e.Fingerprint != sampleResult().Fingerprint {
		t.Fatalf("Fingerprint=%q", e.Fingerprint)
	}
}

func TestRender_LedgerFailureDoesNotFailResponse(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	env.renderer.result = sampleResult()
	env.ledger.err = errors.New("db down")

	rec := env.do(http.MethodPost, "/render", `{"ra":1,"dec":2,"surveys":["DSS"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
}

func TestGetLayer_ServesStoredPNG(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatalf("png.Encode() err=%v", err)
	}
	want := buf.Bytes()
	if err := env.store.Put(context.Background(), "abc.png", bytes.NewReader(want), int64(len(want)), artifacts.ContentTypePNG); err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	rec := env.do(http.MethodGet, "/layer/abc.png", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != artifacts.ContentTypePNG {
		t.Fatalf("Content-Type=%q, want %q", got, artifacts.ContentTypePNG)
	}
	if !bytes.Equal(rec.Body.Bytes(), want) {
		t.Fatalf("body differs from stored bytes")
	}
}

func TestGetLayer_ServesRawSidecar(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	raster := sky.NewRaster(2, 2)
	raw, err := artifacts.EncodeRaw(raster)
	if err != nil {
		t.Fatalf("EncodeRaw() err=%v", err)
	}
	if err := env.store.Put(context.Background(), "abc.f32.snp", bytes.NewReader(raw), int64(len(raw)), artifacts.ContentTypeRaw); err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	rec := env.do(http.MethodGet, "/layer/abc.f32.snp", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != artifacts.ContentTypeRaw {
		t.Fatalf("Content-Type=%q, want %q", got, artifacts.ContentTypeRaw)
	}
}

func TestGetLayer_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	for _, path := range []string{"/layer/missing.png", "/layer/abc.txt", "/layer/.hidden.png"} {
		rec := env.do(http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("GET %s status=%d, want %d", path, rec.Code, http.StatusNotFound)
		}
		body := decodeBody(t, rec)
		if body["detail"] != "Layer not found" {
			t.Fatalf("GET %s detail=%v", path, body["detail"])
		}
	}
}

func TestSurveys_GroupsInArchiveOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{cat: catalog.Catalog{Groups: []skyview.SurveyGroup{
		{Category: "Optical:DSS", Surveys: []string{"DSS", "DSS2 Red"}},
		{Category: "Infrared:2MASS", Surveys: []string{"2MASS-J"}},
	}}})

	rec := env.do(http.MethodGet, "/surveys", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var out surveysResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json.Unmarshal() err=%v", err)
	}
	if out.Count != 3 {
		t.Fatalf("count=%d, want 3", out.Count)
	}
	if strings.Join(out.CategoryOrder, ",") != "Optical:DSS,Infrared:2MASS" {
		t.Fatalf("category_order=%v", out.CategoryOrder)
	}
	if strings.Join(out.AllSurveys, ",") != "DSS,DSS2 Red,2MASS-J" {
		t.Fatalf("all_surveys=%v", out.AllSurveys)
	}
	if len(out.Categories["Optical:DSS"]) != 2 {
		t.Fatalf("categories=%v", out.Categories)
	}
}

func TestSurveys_EmptyCatalogStillOK(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	rec := env.do(http.MethodGet, "/surveys", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(0) {
		t.Fatalf("count=%v, want 0", body["count"])
	}
	if all, ok := body["all_surveys"].([]any); !ok || len(all) != 0 {
		t.Fatalf("all_surveys=%v, want []", body["all_surveys"])
	}
}

func TestSurveysRefresh_ArchiveFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{refreshErr: errors.New("form unavailable")})
	rec := env.do(http.MethodPost, "/surveys/refresh", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	rec := env.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("body=%v", body)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubCatalog{})
	rec := env.do(http.MethodGet, "/openapi.yaml", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/render:") {
		t.Fatalf("document does not describe /render")
	}
}
