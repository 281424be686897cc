package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/harun/recondora/internal/observability"
	"github.com/harun/recondora/pkg/dispatch"
	"github.com/harun/recondora/pkg/registry"
	"github.com/harun/recondora/pkg/report"
)

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type apiErrorBody struct {
	Error apiError `json:"error"`
}

type toolInfo struct {
	Key         string        `json:"key"`
	Kind        registry.Kind `json:"kind"`
	Description string        `json:"description,omitempty"`
	Available   bool          `json:"available"`
}

type groupInfo struct {
	Name  string   `json:"name"`
	Tools []string `json:"tools"`
}

type toolsResponse struct {
	DefaultGroup string      `json:"default_group"`
	Tools        []toolInfo  `json:"tools"`
	Groups       []groupInfo `json:"groups"`
}

type reconResponse struct {
	dispatch.Batch
	Failed int `json:"failed"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Recondora %s is running.\n", s.version)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	reg := s.dispatcher.Registry()

	resp := toolsResponse{DefaultGroup: reg.DefaultGroup()}
	for _, spec := range reg.Specs() {
		resp.Tools = append(resp.Tools, toolInfo{
			Key:         spec.Key,
			Kind:        spec.Kind,
			Description: spec.Description,
			Available:   spec.Kind != registry.KindLocal || s.availability.Available(spec.Key),
		})
	}
	for _, g := range reg.Groups() {
		resp.Groups = append(resp.Groups, groupInfo{Name: g.Name, Tools: g.Keys})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecon(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	target := query.Get("target")
	tokens := dispatch.SplitTokens(query["tools"]...)

	batch, err := s.dispatcher.Dispatch(r.Context(), target, tokens)
	switch {
	case errors.Is(err, dispatch.ErrEmptyTarget):
		writeErr(w, http.StatusBadRequest, "invalid_target", err.Error(), nil)
		return
	case errors.Is(err, dispatch.ErrNoValidTools):
		writeErr(w, http.StatusBadRequest, "no_valid_tools", err.Error(),
			map[string]interface{}{"unknown": s.dispatcher.Resolver().Unknown(tokens)})
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}

	observability.RecordReconAudit(r.Context(), r.RemoteAddr, batch.Target, "completed", batch.Selection,
		map[string]interface{}{"failed": batch.Failed()})

	if query.Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.NewRenderer(report.FormatPlain).Render(batch.Target, batch.Results) + "\n"))
		return
	}

	writeJSON(w, http.StatusOK, reconResponse{Batch: batch, Failed: batch.Failed()})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, errCode, message string, details interface{}) {
	writeJSON(w, code, apiErrorBody{Error: apiError{Code: errCode, Message: message, Details: details}})
}
