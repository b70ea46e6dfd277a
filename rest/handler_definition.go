package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/metadata"
	"go.uber.org/zap"
)

// HandleCreateDefinition takes a yaml or json definition document as body.
func (s *Server) HandleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	def, err := s.metadata.AddDefinition(raw)
	if err != nil {
		logger.Error("error creating definition", zap.Error(err))
		var exists metadata.DefinitionExistsError
		if errors.As(err, &exists) {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]any{"name": def.Name, "version": def.Version, "created": true})
}

func (s *Server) HandleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs := s.metadata.Definitions()
	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.ToMap())
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) HandleGetDefinition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	def, ok := s.metadata.Definition(vars["name"], vars["version"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "definition does not exist")
		return
	}
	respondWithJSON(w, http.StatusOK, definitionView(def))
}

func (s *Server) HandleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.metadata.DeleteDefinition(vars["name"], vars["version"]); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleEnableDefinition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.metadata.EnableDefinition(vars["name"], vars["version"]); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleDisableDefinition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.metadata.DisableDefinition(vars["name"], vars["version"]); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondOKWithoutBody(w)
}

func definitionView(def *definition.ActivityDefinition) map[string]any {
	view := def.ToMap()
	actions := make([]map[string]any, 0, len(def.Actions()))
	for _, a := range def.Actions() {
		actions = append(actions, map[string]any{
			"name":  a.Name,
			"type":  a.Type,
			"await": a.Await,
		})
	}
	view["actions"] = actions
	view["enable"] = def.Enable
	return view
}
