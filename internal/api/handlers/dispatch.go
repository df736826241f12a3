package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cms-dispatch/internal/api/utils"
)

// NewDispatchHandler serves POST /api/dispatch/{rptCd} on the plain track.
func NewDispatchHandler(d PlainDispatcher, log *zap.Logger) http.HandlerFunc {
	log = orNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		rptCd := strings.TrimSpace(chi.URLParam(r, "rptCd"))
		if rptCd == "" {
			utils.WriteError(w, http.StatusBadRequest, "rptCd is required", "INVALID_PARAMETER")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, jsonMaxBodyBytes)
		defer r.Body.Close()

		body, err := readParams(r.Body)
		if err != nil {
			log.Debug("params body rejected", zap.Error(err))
			utils.WriteError(w, http.StatusBadRequest, "Invalid JSON body", "INVALID_JSON")
			return
		}
		jobGb := strings.TrimSpace(body.JobGb)
		if jobGb == "" {
			utils.WriteError(w, http.StatusBadRequest, "jobGb is required", "INVALID_PARAMETER")
			return
		}

		rows, err := d.Dispatch(r.Context(), plainRequest(r, rptCd, jobGb, body.Params))
		if err != nil {
			writeDispatchError(w, log, err)
			return
		}
		if len(rows) == 0 {
			utils.WriteResult(w, nil, utils.CodeFail, noResultsMessage)
			return
		}
		utils.WriteOK(w, rows)
	}
}
