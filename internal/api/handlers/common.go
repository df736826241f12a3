package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"cms-dispatch/internal/api/middleware"
	"cms-dispatch/internal/api/utils"
	"cms-dispatch/internal/dispatch"
)

const (
	jsonMaxBodyBytes = 1 << 20
	noResultsMessage = "No results found."
)

// PlainDispatcher is the plain track as the handlers use it.
type PlainDispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.ResultSet, error)
}

// FileDispatcher is the file track as the handlers use it.
type FileDispatcher interface {
	Dispatch(ctx context.Context, req dispatch.FileRequest) (dispatch.ResultSet, error)
	Upload(ctx context.Context, req dispatch.FileRequest) ([]dispatch.FileOutcome, error)
	Delete(ctx context.Context, req dispatch.FileRequest) ([]dispatch.FileOutcome, error)
	Retrieve(ctx context.Context, req dispatch.FileRequest) (dispatch.ResultSet, error)
}

func plainRequest(r *http.Request, rptCd, jobGb string, params []string) dispatch.Request {
	return dispatch.Request{
		RptCd:     rptCd,
		JobGb:     jobGb,
		EmpNo:     middleware.EmpNo(r.Context()),
		Params:    params,
		Client:    middleware.ClientFrom(r),
		RequestID: middleware.GetRequestID(r.Context()),
	}
}

func fileRequest(r *http.Request, rptCd, jobGb string, params []dispatch.Param) dispatch.FileRequest {
	return dispatch.FileRequest{
		RptCd:     rptCd,
		JobGb:     jobGb,
		EmpNo:     middleware.EmpNo(r.Context()),
		Params:    params,
		Client:    middleware.ClientFrom(r),
		RequestID: middleware.GetRequestID(r.Context()),
	}
}

// writeDispatchError maps a dispatch failure onto a status and code.
// Database failures carry the driver message; anything unclassified is masked.
func writeDispatchError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := dispatch.Code(err)
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, dispatch.ErrUnauthenticated):
		status = http.StatusUnauthorized
		msg = "Unauthorized"
	case errors.Is(err, dispatch.ErrMetadataNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrMetadataResolutionFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrArityMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, dispatch.ErrSizeLimitExceeded):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, dispatch.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "TIMEOUT"
		msg = "Query timeout"
	case errors.Is(err, dispatch.ErrDatabaseOperationFailed):
		msg = "Database error: " + err.Error()
	default:
		msg = "Internal error"
	}

	if status >= http.StatusInternalServerError && log != nil {
		log.Error("dispatch failed", zap.String("code", code), zap.Error(err))
	}
	utils.WriteError(w, status, msg, code)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, jsonMaxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := ensureEOF(dec); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid JSON body", "INVALID_JSON")
		return false
	}
	return true
}

func ensureEOF(dec *json.Decoder) error {
	var extra any
	if err := dec.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return errors.New("extra data")
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
