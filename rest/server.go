package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/strand/engine"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/metadata"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port     int
	metadata *metadata.Service
	control  *engine.Control
}

func NewServer(httpPort int, metadataService *metadata.Service, control *engine.Control) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		metadata: metadataService,
		control:  control,
		Port:     httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/definitions", s.HandleCreateDefinition).Methods(http.MethodPost)
	router.HandleFunc("/definitions", s.HandleListDefinitions).Methods(http.MethodGet)
	router.HandleFunc("/definitions/{name}/{version}", s.HandleGetDefinition).Methods(http.MethodGet)
	router.HandleFunc("/definitions/{name}/{version}", s.HandleDeleteDefinition).Methods(http.MethodDelete)
	router.HandleFunc("/definitions/{name}/{version}/enable", s.HandleEnableDefinition).Methods(http.MethodPost)
	router.HandleFunc("/definitions/{name}/{version}/disable", s.HandleDisableDefinition).Methods(http.MethodPost)

	router.HandleFunc("/activities", s.HandleCreateActivity).Methods(http.MethodPost)
	router.HandleFunc("/activities", s.HandleListActivities).Methods(http.MethodGet)
	router.HandleFunc("/activities/{id}", s.HandleGetActivity).Methods(http.MethodGet)
	router.HandleFunc("/activities/{id}/{status:pause|continue|kill}", s.HandleActivityStatus).Methods(http.MethodPost)

	router.HandleFunc("/activities/{id}/threads", s.HandleListThreads).Methods(http.MethodGet)
	router.HandleFunc("/activities/{id}/threads/{domain}", s.HandleGetThread).Methods(http.MethodGet)
	router.HandleFunc("/activities/{id}/threads/{domain}/pause", s.HandlePauseThread).Methods(http.MethodPost)
	router.HandleFunc("/activities/{id}/threads/{domain}/continue", s.HandleContinueThread).Methods(http.MethodPost)
	router.HandleFunc("/activities/{id}/threads/{domain}/kill", s.HandleKillThread).Methods(http.MethodPost)
	router.HandleFunc("/activities/{id}/threads/{domain}/repair", s.HandleRepairThread).Methods(http.MethodPost)

	router.HandleFunc("/events", s.HandleEvent).Methods(http.MethodPost)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("http request", zap.String("method", r.Method), zap.String("uri", r.RequestURI))
		next.ServeHTTP(w, r)
	})
}

func activityID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	return id, err == nil
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondOKWithoutBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithEngineError maps typed errors to a status code.
func respondWithEngineError(w http.ResponseWriter, err error) {
	var se engine.ScheduleError
	var anf metadata.ActivityNotFoundError
	var dnf metadata.DefinitionNotFoundError
	switch {
	case errors.As(err, &se) && se.Code == engine.ThreadNotFound,
		errors.As(err, &anf),
		errors.As(err, &dnf):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &se):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
