package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fisconforme-backend/internal/archive"
	"fisconforme-backend/internal/batch"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/components/chrono"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/pkg/serviceutil"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	report_api_status  = "api.status"
	report_api_run     = "api.run"
	report_api_archive = "api.archive"
	report_api_encode  = "api.encode"
)

const serviceName = "fisconforme+dares"

// Service is the batch surface exposed over http, batch.Orchestrator
// implements it.
type Service interface {
	Status(ctx context.Context, tenant string) ([]batch.EntityStatus, error)
	Run(ctx context.Context, tenant string) (batch.Run, error)
}

type Server struct {
	service Service
	clock   chrono.API
	tel     telemetry.API
}

func NewServer(service Service, clock chrono.API, tel telemetry.API) Server {
	assert.NotNil(service)
	assert.NotNil(clock)
	assert.NotNil(tel)
	return Server{
		service: service,
		clock:   clock,
		tel:     telemetry.NewScopedAPI("api", tel),
	}
}

// Handler mounts the routes, accessToken guards everything except the health
// check when it is not empty.
func (s Server) Handler(accessToken string) http.Handler {
	guarded := http.NewServeMux()
	guarded.HandleFunc("GET /fisconforme", s.handleStatus)
	guarded.HandleFunc("GET /dares", s.handleDares)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	protected := serviceutil.VerifyAccessToken(accessToken, guarded)
	mux.Handle("/fisconforme", protected)
	mux.Handle("/dares", protected)
	return cors(mux)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s Server) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		s.tel.ReportWarning(report_api_encode, err)
	}
}

type errorResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Ok: false, Error: message})
}

func tenantParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("user"))
}

type indexResponse struct {
	Ok      bool     `json:"ok"`
	Service string   `json:"service"`
	Routes  []string `json:"routes"`
}

func (s Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, indexResponse{
		Ok:      true,
		Service: serviceName,
		Routes:  []string{"/health", "/fisconforme?user=EMAIL", "/dares?user=EMAIL"},
	})
}

type healthResponse struct {
	Ok   bool   `json:"ok"`
	Date string `json:"date"`
}

func (s Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Ok:   true,
		Date: s.clock.Now().Format(time.DateOnly),
	})
}

type statusResponse struct {
	Ok            bool                 `json:"ok"`
	User          string               `json:"user"`
	TotalEntities int                  `json:"total_empresas"`
	Results       []batch.EntityStatus `json:"results"`
}

func (s Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenant := tenantParam(r)
	if tenant == "" {
		s.writeError(w, http.StatusBadRequest, "Parâmetro 'user' é obrigatório.")
		return
	}

	results, err := s.service.Status(r.Context(), tenant)
	if err != nil {
		s.tel.ReportBroken(report_api_status, err, tenant)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []batch.EntityStatus{}
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Ok:            true,
		User:          tenant,
		TotalEntities: len(results),
		Results:       results,
	})
}

type emptyRunResponse struct {
	Ok   bool    `json:"ok"`
	User string  `json:"user"`
	Msg  string  `json:"msg"`
	Zip  *string `json:"zip"`
}

func (s Server) handleDares(w http.ResponseWriter, r *http.Request) {
	tenant := tenantParam(r)
	if tenant == "" {
		s.writeError(w, http.StatusBadRequest, "Parâmetro 'user' é obrigatório.")
		return
	}

	run, err := s.service.Run(r.Context(), tenant)
	if err != nil {
		s.tel.ReportBroken(report_api_run, err, tenant)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(run.Entities) == 0 {
		s.writeJSON(w, http.StatusOK, emptyRunResponse{
			Ok:   true,
			User: tenant,
			Msg:  "Nenhuma empresa para este user.",
		})
		return
	}

	// the archive is built in memory so a failure can still become a 500.
	var buf bytes.Buffer
	err = archive.Write(&buf, run.Bundle())
	if err != nil {
		s.tel.ReportBroken(report_api_archive, err, tenant)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := archive.ArchiveName(tenant, s.clock.Now())
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(buf.Bytes())
	if err != nil {
		s.tel.ReportWarning(report_api_archive, err, tenant)
	}
}
