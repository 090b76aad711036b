package service

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/volsnap-project/volsnap/internal/metastore"
	"github.com/volsnap-project/volsnap/pkg/errclass"
	"github.com/volsnap-project/volsnap/pkg/logging"
	"github.com/volsnap-project/volsnap/pkg/metrics"
	"github.com/volsnap-project/volsnap/pkg/model"
)

// Server is the HTTP admin surface over the task manager.
type Server struct {
	manager *Manager
	metrics *metrics.Registry
	log     *logging.Logger
	router  *httprouter.Router
}

// NewServer builds the HTTP surface.
func NewServer(m *Manager, reg *metrics.Registry, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	s := &Server{
		manager: m,
		metrics: reg,
		log:     log,
		router:  httprouter.New(),
	}

	s.router.POST("/snapshots", s.createSnapshot)
	s.router.DELETE("/snapshots/:uuid", s.deleteSnapshot)
	s.router.POST("/snapshots/:uuid/cancel", s.cancelSnapshot)
	s.router.GET("/snapshots", s.listSnapshots)
	s.router.GET("/snapshots/:uuid", s.getSnapshot)
	s.router.Handler(http.MethodGet, "/metrics", reg.Handler())
	s.router.GET("/healthz", s.healthz)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

type createRequest struct {
	File string `json:"file"`
	User string `json:"user"`
	Name string `json:"name"`
}

type snapshotResponse struct {
	model.SnapshotInfo
	Progress uint32 `json:"progress"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errclass.ErrNameInvalid.WithMessagef("parse request: %v", err))
		return
	}
	info, err := s.manager.CreateSnapshot(req.File, req.User, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.respond(info))
}

func (s *Server) deleteSnapshot(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	snapUUID := p.ByName("uuid")
	user := r.URL.Query().Get("user")
	file := r.URL.Query().Get("file")

	started, err := s.manager.DeleteSnapshot(snapUUID, user, file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !started {
		// Nothing to delete; report success so retries converge.
		s.writeJSON(w, http.StatusOK, map[string]string{"uuid": snapUUID})
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"uuid": snapUUID})
}

func (s *Server) cancelSnapshot(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	snapUUID := p.ByName("uuid")
	if err := s.manager.CancelSnapshot(snapUUID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"uuid": snapUUID})
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var (
		list []model.SnapshotInfo
		err  error
	)
	if file := r.URL.Query().Get("file"); file != "" {
		list, err = s.manager.Core().GetFileSnapshotInfo(file)
	} else {
		list, err = s.manager.Core().GetSnapshotList()
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := make([]snapshotResponse, 0, len(list))
	for i := range list {
		resp = append(resp, *s.respond(&list[i]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getSnapshot(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	snapUUID := p.ByName("uuid")
	info, err := s.manager.Core().GetSnapshotInfo(snapUUID)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Code: "E_FILE_NOT_EXIST"})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.respond(info))
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respond joins the persistent record with the live task progress. Terminal
// records report their implied progress.
func (s *Server) respond(info *model.SnapshotInfo) *snapshotResponse {
	resp := &snapshotResponse{SnapshotInfo: *info}
	if progress, ok := s.manager.TaskProgress(info.UUID); ok {
		resp.Progress = progress
	} else if info.Status == model.StatusDone {
		resp.Progress = 100
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.ErrorErr("write response failed", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var engineErr *errclass.EngineError
	if !errors.As(err, &engineErr) {
		s.writeJSON(w, http.StatusInternalServerError,
			errorResponse{Code: "E_INTERNAL", Message: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(engineErr, errclass.ErrFileNotExist):
		status = http.StatusNotFound
	case errors.Is(engineErr, errclass.ErrInvalidUser):
		status = http.StatusForbidden
	case errors.Is(engineErr, errclass.ErrNameInvalid),
		errors.Is(engineErr, errclass.ErrFileNameNotMatch),
		errors.Is(engineErr, errclass.ErrFileStatusInvalid):
		status = http.StatusBadRequest
	case errors.Is(engineErr, errclass.ErrTaskExist),
		errors.Is(engineErr, errclass.ErrSnapshotCountReachLimit),
		errors.Is(engineErr, errclass.ErrSnapshotCannotCreateWhenError),
		errors.Is(engineErr, errclass.ErrSnapshotCannotDeleteUnfinished),
		errors.Is(engineErr, errclass.ErrSnapshotCannotDeleteCloning):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, errorResponse{Code: engineErr.Code, Message: engineErr.Message})
}
