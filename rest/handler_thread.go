package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"go.uber.org/zap"
)

type threadView struct {
	ActivityID        int            `json:"activity_id"`
	DomainID          string         `json:"domain_id"`
	DefinitionName    string         `json:"definition_name"`
	DefinitionVersion string         `json:"definition_version"`
	CurrentAction     string         `json:"current_action"`
	Status            string         `json:"status"`
	InRepair          bool           `json:"in_repair"`
	Context           map[string]any `json:"context"`
	CreatedOn         int64          `json:"created_on"`
	UpdatedOn         int64          `json:"updated_on"`
}

func toThreadView(t *model.ActivityThread) threadView {
	return threadView{
		ActivityID:        t.ActivityID,
		DomainID:          t.DomainID,
		DefinitionName:    t.DefinitionName,
		DefinitionVersion: t.DefinitionVersion,
		CurrentAction:     t.CurrentAction,
		Status:            t.Status.String(),
		InRepair:          t.InRepair(),
		Context:           t.Context,
		CreatedOn:         t.CreatedOn,
		UpdatedOn:         t.UpdatedOn,
	}
}

func (s *Server) HandleListThreads(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid activity id")
		return
	}
	threads, err := s.control.ListThreads(id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	out := make([]threadView, 0, len(threads))
	for _, t := range threads {
		out = append(out, toThreadView(t))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) HandleGetThread(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid activity id")
		return
	}
	thread, err := s.control.GetThread(id, mux.Vars(r)["domain"])
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toThreadView(thread))
}

func (s *Server) HandlePauseThread(w http.ResponseWriter, r *http.Request) {
	s.threadCommand(w, r, s.control.Pause)
}

func (s *Server) HandleContinueThread(w http.ResponseWriter, r *http.Request) {
	s.threadCommand(w, r, s.control.Continue)
}

func (s *Server) HandleKillThread(w http.ResponseWriter, r *http.Request) {
	s.threadCommand(w, r, s.control.Kill)
}

func (s *Server) HandleRepairThread(w http.ResponseWriter, r *http.Request) {
	var args model.RepairArgs
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.threadCommand(w, r, func(activityID int, domainID string) error {
		return s.control.Repair(activityID, domainID, args)
	})
}

func (s *Server) threadCommand(w http.ResponseWriter, r *http.Request, cmd func(activityID int, domainID string) error) {
	id, ok := activityID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid activity id")
		return
	}
	domainID := mux.Vars(r)["domain"]
	if err := cmd(id, domainID); err != nil {
		logger.Error("error sending thread command", zap.Int("activity", id), zap.String("domain", domainID), zap.Error(err))
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{"queued": true})
}
