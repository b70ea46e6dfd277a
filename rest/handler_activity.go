package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"go.uber.org/zap"
)

type createActivityRequest struct {
	DisplayName    string         `json:"display_name"`
	DefinitionName string         `json:"definition_name"`
	Config         map[string]any `json:"config"`
}

var activityStatusByCommand = map[string]model.ActivityStatus{
	"pause":    model.ActivityPaused,
	"continue": model.ActivityCommon,
	"kill":     model.ActivityKilled,
}

func (s *Server) HandleCreateActivity(w http.ResponseWriter, r *http.Request) {
	var req createActivityRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	activity, err := s.metadata.CreateActivity(req.DisplayName, req.DefinitionName, req.Config)
	if err != nil {
		logger.Error("error creating activity", zap.String("definition", req.DefinitionName), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, activity)
}

func (s *Server) HandleListActivities(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.metadata.Activities())
}

func (s *Server) HandleGetActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid activity id")
		return
	}
	activity, err := s.metadata.Activity(id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, activity)
}

// HandleActivityStatus pauses, continues or kills a whole activity.
func (s *Server) HandleActivityStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid activity id")
		return
	}
	status := activityStatusByCommand[mux.Vars(r)["status"]]
	if err := s.metadata.SetActivityStatus(id, status); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondOKWithoutBody(w)
}
