package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/logging"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	ctx := r.Context()
	var result interface{}
	var err error

	switch request.Method {
	case "scoring.evaluate", "affinity.predict", "optimization.run":
		var req pairRequest
		if err = decodeParams(request.Params, &req); err != nil {
			break
		}
		switch request.Method {
		case "scoring.evaluate":
			result, err = s.evaluate(ctx, req)
		case "affinity.predict":
			result, err = s.predict(ctx, req)
		default:
			result, err = s.optimize(ctx, req)
		}
	case "discovery.multiTarget", "discovery.breakthrough", "discovery.selectivity",
		"discovery.mutationImpact", "analysis.start":
		var req panelRequest
		if err = decodeParams(request.Params, &req); err != nil {
			break
		}
		switch request.Method {
		case "discovery.multiTarget":
			result, err = s.multiTarget(ctx, req)
		case "discovery.breakthrough":
			result, err = s.breakthrough(ctx, req)
		case "discovery.selectivity":
			result, err = s.selectivity(ctx, req)
		case "discovery.mutationImpact":
			result, err = s.mutationImpact(ctx, req)
		default:
			result, err = s.startAnalysis(req)
		}
	case "analysis.status", "analysis.cancel":
		var ref analysisRef
		if err = decodeParams(request.Params, &ref); err != nil {
			break
		}
		if ref.AnalysisID == "" {
			err = errors.Wrap(errInvalidParams, "analysis_id is required")
			break
		}
		if request.Method == "analysis.status" {
			result, err = s.analysisStatus(ref.AnalysisID)
		} else if err = s.cancelAnalysis(ref.AnalysisID); err == nil {
			result = map[string]string{"status": StatusCancelled}
		}
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := rpcServerError
		if statusFor(err) == http.StatusBadRequest {
			code = rpcInvalidParams
		}
		logging.FromContext(ctx).WithError(err).Debug("RPC call failed", map[string]interface{}{
			"method": request.Method,
		})
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers a REST call with the status mapped from err.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("Operation failed")
	}
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errors.Wrapf(errInvalidParams, "invalid request body: %v", err)
	}
	return nil
}

func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.evaluate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAffinity(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.predict(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.optimize(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMultiTarget(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.multiTarget(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBreakthrough(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.breakthrough(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSelectivity(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.selectivity(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMutationImpact(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.mutationImpact(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStartAnalysis handles POST /analyses, answering 202 with the job ID.
func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.startAnalysis(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.analysisStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancelAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.cancelAnalysis(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}
