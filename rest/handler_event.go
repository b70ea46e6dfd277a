package rest

import (
	"encoding/json"
	"net/http"

	"github.com/mohitkumar/strand/logger"
	"go.uber.org/zap"
)

type eventRequest struct {
	Type       string         `json:"type"`
	Sender     string         `json:"sender"`
	Attributes map[string]any `json:"attr"`
}

func (s *Server) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Type) == 0 {
		respondWithError(w, http.StatusBadRequest, "event type can not be empty")
		return
	}
	id, err := s.control.PostEvent(req.Type, req.Sender, req.Attributes)
	if err != nil {
		logger.Error("error posting event", zap.String("type", req.Type), zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{"id": id})
}
