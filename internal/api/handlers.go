package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"triage/internal/history"
	"triage/internal/logging"
	"triage/internal/request"
	"triage/internal/services/llm"
)

const (
	defaultHistoryLimit = 50
	chatContextLimit    = 20
	maxRequestBodyBytes = 64 << 10
	maxChatMessageRunes = 4000
)

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req PredictRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	resolved, err := s.opts.Catalog.ResolveAll(req.Symptoms)
	if err != nil {
		s.recordPrediction(false)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symptomIDs := make([]string, len(resolved))
	for i, symptom := range resolved {
		symptomIDs[i] = symptom.ID
	}

	prediction, err := s.opts.Assistant.Predict(r.Context(), llm.PredictionInput{
		Symptoms: symptomIDs,
		Age:      req.Age,
		Gender:   strings.TrimSpace(req.Gender),
	})
	if err != nil {
		s.recordPrediction(false)
		s.writePredictionError(w, err)
		return
	}

	record := &history.Prediction{
		UserID:     s.opts.UserID,
		Symptoms:   symptomIDs,
		Age:        req.Age,
		Gender:     strings.TrimSpace(req.Gender),
		ResultJSON: prediction.Raw,
		Model:      s.opts.PredictModel,
	}
	if err := s.opts.Store.SavePrediction(r.Context(), record); err != nil {
		// The prediction itself succeeded; log the persistence failure and
		// still return the result.
		s.logger.Error("save prediction failed", logging.Error(err))
	}

	s.recordPrediction(true)
	conditions := make([]ConditionView, len(prediction.Conditions))
	for i, cond := range prediction.Conditions {
		conditions[i] = ConditionView{
			Name:        cond.Name,
			Likelihood:  cond.Likelihood,
			Description: cond.Description,
		}
	}
	s.writeJSON(w, http.StatusOK, PredictResponse{
		ID:         record.ID,
		Symptoms:   symptomIDs,
		Conditions: conditions,
		Advice:     prediction.Advice,
		Disclaimer: prediction.Disclaimer,
		Model:      record.Model,
		CreatedAt:  record.CreatedAt,
	})
}

func (s *Server) writePredictionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, llm.ErrMalformedPrediction):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case isRequestError(err):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func isRequestError(err error) bool {
	var reqErr *request.Error
	return errors.As(err, &reqErr)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ChatRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.writeError(w, http.StatusBadRequest, "message required")
		return
	}
	if len([]rune(message)) > maxChatMessageRunes {
		s.writeError(w, http.StatusBadRequest, "message too long")
		return
	}

	recent, err := s.opts.Store.Transcript(r.Context(), s.opts.UserID, chatContextLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	transcript := make([]llm.Turn, len(recent))
	for i, msg := range recent {
		transcript[i] = llm.Turn{Role: string(msg.Role), Text: msg.Content}
	}

	if err := s.opts.Store.AppendMessage(r.Context(), &history.Message{
		UserID:  s.opts.UserID,
		Role:    history.RoleUser,
		Content: message,
	}); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reply, err := s.opts.Assistant.Chat(r.Context(), transcript, message)
	if err != nil {
		s.recordChat(false)
		if isRequestError(err) {
			// The assistant is unreachable; hand the caller the canned
			// fallback instead of a bare failure.
			s.logger.Warn("chat fallback", logging.Error(err))
			s.writeJSON(w, http.StatusOK, ChatResponse{Reply: llm.FallbackMessage, Fallback: true})
			return
		}
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if err := s.opts.Store.AppendMessage(r.Context(), &history.Message{
		UserID:  s.opts.UserID,
		Role:    history.RoleAssistant,
		Content: reply,
	}); err != nil {
		s.logger.Error("save assistant reply failed", logging.Error(err))
	}

	s.recordChat(true)
	s.writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit)
		records, err := s.opts.Store.ListPredictions(r.Context(), s.opts.UserID, limit)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		views := make([]PredictionView, len(records))
		for i, rec := range records {
			views[i] = PredictionView{
				ID:        rec.ID,
				Symptoms:  rec.Symptoms,
				Age:       rec.Age,
				Gender:    rec.Gender,
				Result:    rec.ResultJSON,
				Model:     rec.Model,
				CreatedAt: rec.CreatedAt,
			}
		}
		s.writeJSON(w, http.StatusOK, HistoryResponse{Predictions: views})

	case http.MethodDelete:
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			removed, err := s.opts.Store.RemovePrediction(r.Context(), s.opts.UserID, id)
			if err != nil {
				s.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !removed {
				s.writeError(w, http.StatusNotFound, "prediction not found")
				return
			}
			s.writeJSON(w, http.StatusOK, ClearedResponse{Cleared: 1})
			return
		}
		cleared, err := s.opts.Store.ClearPredictions(r.Context(), s.opts.UserID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, ClearedResponse{Cleared: cleared})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		if query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true") {
			s.followTranscript(w, r)
			return
		}
		limit := parseLimit(query.Get("limit"), 0)
		messages, err := s.opts.Store.Transcript(r.Context(), s.opts.UserID, limit)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		views := make([]MessageView, len(messages))
		for i, msg := range messages {
			views[i] = MessageView{
				ID:        msg.ID,
				Role:      string(msg.Role),
				Content:   msg.Content,
				CreatedAt: msg.CreatedAt,
			}
		}
		s.writeJSON(w, http.StatusOK, TranscriptResponse{Messages: views})

	case http.MethodDelete:
		cleared, err := s.opts.Store.ClearTranscript(r.Context(), s.opts.UserID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, ClearedResponse{Cleared: cleared})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// followTranscript streams messages appended after the request arrived as
// newline-delimited JSON until the client disconnects or the store closes
// the subscription.
func (s *Server) followTranscript(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// The server-wide write timeout would sever long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	messages, cancel := s.opts.Store.Subscribe(s.opts.UserID)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	encoder := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-messages:
			if !open {
				return
			}
			if err := encoder.Encode(MessageView{
				ID:        msg.ID,
				Role:      string(msg.Role),
				Content:   msg.Content,
				CreatedAt: msg.CreatedAt,
			}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.opts.Store.CheckHealth(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}
	resp := HealthResponse{Status: "ok"}
	// Probing the upstream model costs a real API call, so it is opt-in.
	if r.URL.Query().Get("llm") == "1" {
		if err := s.opts.Assistant.HealthCheck(r.Context()); err != nil {
			resp.LLM = "unreachable"
			s.writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.LLM = "ok"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recordPrediction(ok bool) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordPrediction(ok)
	}
}

func (s *Server) recordChat(ok bool) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordChat(ok)
	}
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return fallback
	}
	return limit
}
