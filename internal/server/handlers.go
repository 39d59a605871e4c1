package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
	"github.com/bobmcallan/rollup/internal/services/jobmanager"
	"github.com/bobmcallan/rollup/internal/services/report"
)

// Request body limits
const (
	maxJSONBody = 32 << 20
	maxCSVBody  = 128 << 20
)

// handleReport serves GET /api/reports?date=&level=&key=[&format=markdown].
// level defaults to the "All Clients" root, where key is ignored.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	date, err := models.ParseDate(q.Get("date"))
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), CodeInvalidRequest)
		return
	}

	level := models.NodeTypeRoot
	if raw := q.Get("level"); raw != "" {
		var ok bool
		if level, ok = models.ParseNodeType(raw); !ok {
			WriteErrorWithCode(w, http.StatusBadRequest, fmt.Sprintf("unknown level %q", raw), CodeInvalidRequest)
			return
		}
	}
	key := q.Get("key")
	if key == "" && level != models.NodeTypeRoot {
		WriteErrorWithCode(w, http.StatusBadRequest, "key is required for level "+string(level), CodeInvalidRequest)
		return
	}

	rep, err := s.app.ReportService.GetReport(r.Context(), date, level, key)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	if strings.EqualFold(q.Get("format"), "markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, report.FormatMarkdown(rep, s.app.Config.DisplayCurrency))
		return
	}
	WriteJSON(w, http.StatusOK, rep)
}

// handleOwnershipTree serves GET /api/ownership/tree[?root=].
func (s *Server) handleOwnershipTree(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	tree, err := s.app.OwnershipService.GetOwnershipTree(r.Context(), r.URL.Query().Get("root"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tree)
}

// handleOwnershipReplace serves PUT /api/ownership with a JSON array of rows.
// Invalid rows leave the current hierarchy in place.
func (s *Server) handleOwnershipReplace(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}
	var rows []*models.OwnershipRow
	if !DecodeJSON(w, r, &rows, maxJSONBody) {
		return
	}

	h, err := s.app.OwnershipService.ReplaceRows(r.Context(), rows)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	tree, err := h.Tree("")
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tree)
}

// handlePositionSnapshot serves POST /api/positions/{date} with a JSON array
// of positions. A date can be ingested once.
func (s *Server) handlePositionSnapshot(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	date, err := models.ParseDate(PathParam(r, "/api/positions/", ""))
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), CodeInvalidRequest)
		return
	}

	var inputs []*models.PositionInput
	if !DecodeJSON(w, r, &inputs, maxJSONBody) {
		return
	}

	info, err := s.app.PositionService.IngestSnapshot(r.Context(), date, inputs)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, info)
}

// handlePositionList serves GET /api/positions with one entry per snapshot date.
func (s *Server) handlePositionList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	snapshots, err := s.app.PositionService.ListSnapshots(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snapshots})
}

// riskStatInput is the wire form of a risk-stat row; dates are "YYYY-MM-DD".
type riskStatInput struct {
	Ticker     string   `json:"ticker"`
	AssetClass string   `json:"asset_class"`
	Volatility *float64 `json:"volatility"`
	Beta       *float64 `json:"beta"`
	Duration   *float64 `json:"duration"`
	BetaToGold *float64 `json:"beta_to_gold"`
	AsOfDate   string   `json:"as_of_date"`
}

type jobSubmitRequest struct {
	Source    string          `json:"source"`
	BatchSize int             `json:"batch_size"`
	Workers   int             `json:"workers"`
	Records   []riskStatInput `json:"records"`
}

// handleJobSubmit serves POST /api/risk-stats/jobs. The body is either JSON
// (jobSubmitRequest) or text/csv with batch_size and workers as query params.
// The job runs in the background; the response carries its id.
func (s *Server) handleJobSubmit(w http.ResponseWriter, r *http.Request) {
	var (
		source interfaces.RiskStatSource
		opts   interfaces.SubmitOptions
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		var err error
		if opts.BatchSize, err = queryInt(r, "batch_size"); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, "batch_size must be an integer", CodeInvalidRequest)
			return
		}
		if opts.Workers, err = queryInt(r, "workers"); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, "workers must be an integer", CodeInvalidRequest)
			return
		}
		// The job outlives the request, so the body is buffered first.
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCSVBody))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Failed to read body: "+err.Error())
			return
		}
		label := r.URL.Query().Get("source")
		if label == "" {
			label = "csv upload"
		}
		source = jobmanager.NewCSVSource(bytes.NewReader(body), label)
	} else {
		var req jobSubmitRequest
		if !DecodeJSON(w, r, &req, maxJSONBody) {
			return
		}
		records := make([]*models.RiskStatRecord, 0, len(req.Records))
		for i, in := range req.Records {
			asOf, err := models.ParseDate(in.AsOfDate)
			if err != nil {
				WriteErrorWithCode(w, http.StatusBadRequest, fmt.Sprintf("records[%d]: %v", i, err), CodeInvalidRequest)
				return
			}
			records = append(records, &models.RiskStatRecord{
				Ticker:     in.Ticker,
				AssetClass: in.AssetClass,
				Volatility: in.Volatility,
				Beta:       in.Beta,
				Duration:   in.Duration,
				BetaToGold: in.BetaToGold,
				AsOf:       asOf,
			})
		}
		source = jobmanager.NewSliceSource(records, req.Source)
		opts = interfaces.SubmitOptions{BatchSize: req.BatchSize, Workers: req.Workers}
	}

	id, err := s.app.JobManager.Submit(r.Context(), source, opts)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	s.logger.Info().
		Str("job_id", id).
		Str("source", source.Describe()).
		Str("correlation_id", CorrelationID(r.Context())).
		Msg("Risk-stats job submitted")
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"status": models.JobStatusPending,
	})
}

// handleJobList serves GET /api/risk-stats/jobs[?limit=].
func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		WriteErrorWithCode(w, http.StatusBadRequest, "limit must be a non-negative integer", CodeInvalidRequest)
		return
	}
	jobs, err := s.app.JobManager.ListJobs(r.Context(), limit)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// handleJobGet serves GET /api/risk-stats/jobs/{id}.
func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	id := PathParam(r, "/api/risk-stats/jobs/", "")
	if id == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, "job id is required in path", CodeInvalidRequest)
		return
	}
	job, err := s.app.JobManager.GetStatus(r.Context(), id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
