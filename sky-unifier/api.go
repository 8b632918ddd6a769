package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sky-unifier/sky-unifier-go/internal/artifacts"
	"github.com/sky-unifier/sky-unifier-go/internal/catalog"
	"github.com/sky-unifier/sky-unifier-go/internal/platform/apispec"
	"github.com/sky-unifier/sky-unifier-go/internal/platform/httpserver"
	"github.com/sky-unifier/sky-unifier-go/internal/render"
	"github.com/sky-unifier/sky-unifier-go/internal/renderlog"
	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

const defaultSizeDeg = 0.1

type renderer interface {
	RenderAll(ctx context.Context, req sky.RenderRequest) (render.Result, error)
}

type surveyCatalog interface {
	Get(ctx context.Context) catalog.Catalog
	Refresh(ctx context.Context) (catalog.Catalog, error)
}

type skyUnifierAPI struct {
	logger            *slog.Logger
	spec              *apispec.Spec
	renderer          renderer
	store             artifacts.Store
	catalog           surveyCatalog
	ledger            renderlog.Recorder
	defaultPixelScale float64
	version           string
	bodyMaxBytes      int64
}

func newSkyUnifierAPI(logger *slog.Logger, spec *apispec.Spec, r renderer, store artifacts.Store, cat surveyCatalog, ledger renderlog.Recorder, defaultPixelScale float64, version string) *skyUnifierAPI {
	if ledger == nil {
		ledger = renderlog.Nop{}
	}
	return &skyUnifierAPI{
		logger:            logger,
		spec:              spec,
		renderer:          r,
		store:             store,
		catalog:           cat,
		ledger:            ledger,
		defaultPixelScale: defaultPixelScale,
		version:           version,
		bodyMaxBytes:      1 << 20,
	}
}

func (api *skyUnifierAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /render", api.handleRender)
	mux.HandleFunc("GET /layer/{file}", api.handleGetLayer)
	mux.HandleFunc("GET /surveys", api.handleListSurveys)
	mux.HandleFunc("POST /surveys/refresh", api.handleRefreshSurveys)
	mux.HandleFunc("GET /health", api.handleHealth)
	mux.HandleFunc("GET /openapi.yaml", api.handleOpenAPI)
}

type renderRequestBody struct {
	RA         float64  `json:"ra"`
	Dec        float64  `json:"dec"`
	SizeDeg    *float64 `json:"size_deg"`
	Surveys    []string `json:"surveys"`
	Stretch    string   `json:"stretch"`
	PixelScale *float64 `json:"pixel_scale"`
}

type layerResponse struct {
	ID     string   `json:"id"`
	Survey string   `json:"survey"`
	URL    string   `json:"url"`
	RawURL string   `json:"raw_url"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

type layerErrorResponse struct {
	Survey string `json:"survey"`
	Error  string `json:"error"`
}

type renderResponse struct {
	Fingerprint string               `json:"fingerprint"`
	Layers      []layerResponse      `json:"layers"`
	Errors      []layerErrorResponse `json:"errors"`
}

func (api *skyUnifierAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, api.bodyMaxBytes+1))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if int64(len(body)) > api.bodyMaxBytes {
		api.writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "")
		return
	}
	if err := api.spec.ValidateJSON("RenderRequest", body); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	var in renderRequestBody
	if err := decodeJSONBytes(body, &in); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	req, err := api.toRenderRequest(in)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	api.logger.Info("render requested",
		"ra", req.RA,
		"dec", req.Dec,
		"size_deg", req.SizeDeg,
		"surveys", sky.SourceIDs(req.Sources),
		"stretch", string(req.Stretch),
		"pixel_scale", req.PixelScale,
	)

	res, err := api.renderer.RenderAll(r.Context(), req)
	if err != nil {
		if errors.Is(err, sky.ErrInvalidRequest) {
			api.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		api.logger.Error("render failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}

	api.record(r, req, res)

	out := renderResponse{
		Fingerprint: res.Fingerprint,
		Layers:      make([]layerResponse, 0, len(res.Layers)),
		Errors:      make([]layerErrorResponse, 0, len(res.Failures)),
	}
	for _, l := range res.Layers {
		out.Layers = append(out.Layers, layerResponse{
			ID:     l.ID,
			Survey: l.SourceID,
			URL:    "/layer/" + l.ImageKey,
			RawURL: "/layer/" + l.RawKey,
			Min:    finiteOrNil(l.Min),
			Max:    finiteOrNil(l.Max),
		})
	}
	for _, f := range res.Failures {
		out.Errors = append(out.Errors, layerErrorResponse{Survey: f.SourceID, Error: f.Cause})
	}
	api.writeJSON(w, http.StatusOK, out)
}

func (api *skyUnifierAPI) toRenderRequest(in renderRequestBody) (sky.RenderRequest, error) {
	stretch, err := sky.ParseStretch(in.Stretch)
	if err != nil {
		return sky.RenderRequest{}, err
	}
	sources, err := sky.ParseSources(in.Surveys)
	if err != nil {
		return sky.RenderRequest{}, err
	}
	req := sky.RenderRequest{
		RA:         in.RA,
		Dec:        in.Dec,
		SizeDeg:    defaultSizeDeg,
		Sources:    sources,
		Stretch:    stretch,
		PixelScale: api.defaultPixelScale,
	}
	if in.SizeDeg != nil {
		req.SizeDeg = *in.SizeDeg
	}
	if in.PixelScale != nil {
		req.PixelScale = *in.PixelScale
	}
	return req, nil
}

// record writes the ledger entry. Ledger failures never fail the response.
func (api *skyUnifierAPI) record(r *http.Request, req sky.RenderRequest, res render.Result) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	renderID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	err := api.ledger.Record(ctx, renderlog.Entry{
		RenderID:    renderID,
		RequestID:   requestID,
		Fingerprint: res.Fingerprint,
		Request:     req,
		GridSize:    res.Grid.Size,
		Outcomes:    res.Outcomes,
		Duration:    res.Duration,
	})
	if err != nil {
		api.logger.Warn("render ledger write failed", "request_id", requestID, "error", err)
	}
}

func (api *skyUnifierAPI) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	contentType := ""
	switch {
	case strings.HasSuffix(file, artifacts.RawSuffix):
		contentType = artifacts.ContentTypeRaw
	case strings.HasSuffix(file, artifacts.PNGSuffix):
		contentType = artifacts.ContentTypePNG
	}
	if contentType == "" || artifacts.CheckKey(file) != nil {
		api.writeError(w, r, http.StatusNotFound, "not_found", "Layer not found")
		return
	}

	rc, info, err := api.store.Open(r.Context(), file)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found", "Layer not found")
			return
		}
		api.logger.Error("layer read failed", "key", file, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "artifact_store_error", "")
		return
	}
	defer rc.Close()

	if info.ContentType != "" {
		contentType = info.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	// Layer ids are unique per render, so the bytes behind a key never change.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

type surveysResponse struct {
	Count         int                 `json:"count"`
	Categories    map[string][]string `json:"categories"`
	CategoryOrder []string            `json:"category_order"`
	AllSurveys    []string            `json:"all_surveys"`
}

func toSurveysResponse(cat catalog.Catalog) surveysResponse {
	out := surveysResponse{
		Count:         cat.Count(),
		Categories:    make(map[string][]string, len(cat.Groups)),
		CategoryOrder: make([]string, 0, len(cat.Groups)),
		AllSurveys:    cat.All(),
	}
	for _, g := range cat.Groups {
		if _, seen := out.Categories[g.Category]; !seen {
			out.CategoryOrder = append(out.CategoryOrder, g.Category)
		}
		out.Categories[g.Category] = append(out.Categories[g.Category], g.Surveys...)
	}
	return out
}

func (api *skyUnifierAPI) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, toSurveysResponse(api.catalog.Get(r.Context())))
}

func (api *skyUnifierAPI) handleRefreshSurveys(w http.ResponseWriter, r *http.Request) {
	cat, err := api.catalog.Refresh(r.Context())
	if err != nil {
		api.logger.Warn("survey refresh failed", "error", err)
		api.writeError(w, r, http.StatusBadGateway, "archive_unavailable", err.Error())
		return
	}
	api.writeJSON(w, http.StatusOK, toSurveysResponse(cat))
}

func (api *skyUnifierAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": api.version,
	})
}

func (api *skyUnifierAPI) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(apispec.YAML())
}

func decodeJSONBytes(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (api *skyUnifierAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	httpserver.WriteJSON(w, status, body)
}

func (api *skyUnifierAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string, detail string) {
	requestID, ok := httpserver.RequestIDFromContext(r.Context())
	if !ok {
		requestID = r.Header.Get("X-Request-Id")
	}
	body := map[string]any{
		"error":      code,
		"request_id": requestID,
	}
	if detail != "" {
		body["detail"] = detail
	}
	api.writeJSON(w, status, body)
}

