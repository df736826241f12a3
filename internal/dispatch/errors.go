package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated          = errors.New("caller identity is missing")
	ErrMetadataNotFound         = errors.New("no procedure metadata found")
	ErrMetadataResolutionFailed = errors.New("procedure lookup failed")
	ErrArityMismatch            = errors.New("parameter count does not match")
	ErrSizeLimitExceeded        = errors.New("size limit exceeded")
	ErrDatabaseOperationFailed  = errors.New("database operation failed")
	ErrInvalidParameter         = errors.New("invalid parameter")
)

// Stage names the dispatch step an error originated from.
type Stage string

const (
	StageAuth    Stage = "auth"
	StageResolve Stage = "resolve"
	StageArity   Stage = "arity"
	StageBuild   Stage = "build"
	StageExecute Stage = "execute"
)

// Error is returned by every dispatch entry point. Kind is one of the Err*
// sentinels; Err, when set, is the underlying driver or codec error.
type Error struct {
	Kind  error
	Stage Stage
	RptCd string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newError(kind error, stage Stage, rptCd, msg string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, RptCd: rptCd, Msg: msg, Err: err}
}

func sizeError(stage Stage, rptCd string, size int, limit int64) *Error {
	return newError(ErrSizeLimitExceeded, stage, rptCd,
		fmt.Sprintf("file size %d exceeds %s limit", size, formatLimit(limit)), nil)
}

// formatLimit prints whole mebibytes as MB and anything else in bytes.
func formatLimit(limit int64) string {
	const mib = 1 << 20
	if limit >= mib && limit%mib == 0 {
		return fmt.Sprintf("%dMB", limit/mib)
	}
	return fmt.Sprintf("%d bytes", limit)
}

func arityError(rptCd string, expected, provided int) *Error {
	return newError(ErrArityMismatch, StageArity, rptCd,
		fmt.Sprintf("invalid parameter count: expected %d, provided %d", expected, provided), nil)
}

// Code maps an error to a stable machine-readable code.
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrMetadataNotFound):
		return "METADATA_NOT_FOUND"
	case errors.Is(err, ErrMetadataResolutionFailed):
		return "METADATA_RESOLUTION_FAILED"
	case errors.Is(err, ErrArityMismatch):
		return "ARITY_MISMATCH"
	case errors.Is(err, ErrSizeLimitExceeded):
		return "SIZE_LIMIT_EXCEEDED"
	case errors.Is(err, ErrInvalidParameter):
		return "INVALID_PARAMETER"
	case errors.Is(err, ErrDatabaseOperationFailed):
		return "DB_ERROR"
	default:
		return "INTERNAL"
	}
}
