// Package serve implements the invocation wrapper around the pipeline:
// a request names a contract and source/target dataset paths, the
// wrapper resolves them through the storage collaborator, runs the
// pipeline and maps the result to a status code and JSON body. The
// same Execute entrypoint backs both the HTTP surface and the CLI.
package serve

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
	"github.com/ormasoftchile/dataward/pkg/pipeline"
	"github.com/ormasoftchile/dataward/pkg/store"
)

// Request names the resources for one contract execution. Source and
// target paths fall back to the contract's declared paths when empty.
// Each path is independently local or s3://.
type Request struct {
	ContractPath string `json:"contract_path"`
	SourcePath   string `json:"source_path,omitempty"`
	TargetPath   string `json:"target_path,omitempty"`

	FailFast        bool `json:"fail_fast,omitempty"`
	DropInvalidRows bool `json:"drop_invalid_rows,omitempty"`
}

// Response is the JSON-serializable outcome of one execution.
type Response struct {
	Message    string           `json:"message"`
	Contract   string           `json:"contract"`
	InputRows  int              `json:"input_rows"`
	OutputRows int              `json:"output_rows"`
	Results    *pipeline.Result `json:"pipeline_results"`
}

// Handler wires the invocation wrapper to its collaborators.
type Handler struct {
	Store *store.Router
	Log   *slog.Logger

	// Options passes custom registries and default policies through to
	// every run.
	Options pipeline.Options
}

// NewHandler builds a handler over the given storage router. A nil
// logger falls back to slog's default.
func NewHandler(st *store.Router, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Store: st, Log: log}
}

// Execute resolves the request's paths, runs the pipeline and writes
// the output dataset on success. Invalid requests and inconsistent
// contracts return an error; data-quality failures return a Response
// with Results.Success == false and no error.
func (h *Handler) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.ContractPath == "" {
		return nil, fmt.Errorf("missing required parameter: contract_path")
	}

	raw, err := h.Store.Get(ctx, req.ContractPath)
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	c, err := contract.ParseAndVerify(raw)
	if err != nil {
		return nil, err
	}
	h.Log.Info("contract loaded", "contract", c.Name, "version", c.Version)

	sourcePath := req.SourcePath
	if sourcePath == "" {
		sourcePath = c.SourcePath
	}
	targetPath := req.TargetPath
	if targetPath == "" {
		targetPath = c.TargetPath
	}
	if sourcePath == "" || targetPath == "" {
		return nil, fmt.Errorf("source and target paths must be specified in contract or request")
	}

	srcData, err := h.Store.Get(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read source data: %w", err)
	}
	ds, err := dataset.ReadCSV(bytes.NewReader(srcData))
	if err != nil {
		return nil, fmt.Errorf("parse source data: %w", err)
	}
	h.Log.Info("source data loaded", "path", sourcePath, "rows", ds.Len())

	opts := h.Options
	opts.FailFast = opts.FailFast || req.FailFast
	opts.DropInvalidRows = opts.DropInvalidRows || req.DropInvalidRows
	result, err := pipeline.Run(c, ds, opts)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Contract:   c.Name,
		InputRows:  result.InputRows,
		OutputRows: result.OutputRows,
		Results:    result,
	}
	if !result.Success {
		resp.Message = "pipeline validation failed"
		return resp, nil
	}

	var buf bytes.Buffer
	if err := dataset.WriteCSV(&buf, result.Output); err != nil {
		return nil, fmt.Errorf("encode output data: %w", err)
	}
	if err := h.Store.Put(ctx, targetPath, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write output data: %w", err)
	}
	h.Log.Info("output data written", "path", targetPath, "rows", result.OutputRows)

	resp.Message = "data contract execution completed successfully"
	return resp, nil
}

// Router builds the HTTP surface: POST /v1/execute plus a health probe.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Post("/v1/execute", h.handleExecute)
	return r
}

// errorBody is the JSON shape for request and execution errors.
type errorBody struct {
	Message string `json:"message"`
}

// handleExecute adapts Execute to HTTP: 200 on success, 500 when the
// pipeline reports failure or execution errors out, 400 for a
// malformed request body.
func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	log := h.Log.With("request_id", reqID)
	start := time.Now()

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorBody{Message: fmt.Sprintf("decode request: %v", err)})
		return
	}

	resp, err := h.Execute(r.Context(), req)
	if err != nil {
		log.Error("execution failed", "error", err, "duration", time.Since(start))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorBody{Message: fmt.Sprintf("data contract execution failed: %v", err)})
		return
	}
	if !resp.Results.Success {
		log.Warn("validation failed", "contract", resp.Contract, "duration", time.Since(start))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp)
		return
	}

	log.Info("execution completed", "contract", resp.Contract, "duration", time.Since(start))
	render.JSON(w, r, resp)
}
