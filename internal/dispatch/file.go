package dispatch

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// FileRequest is a file-track dispatch. Text params are escaped by the
// dispatcher; binary params travel as-is.
type FileRequest struct {
	RptCd     string
	JobGb     string
	EmpNo     string
	Params    []Param
	Client    Client
	RequestID string
}

// FileOutcome is the status row an upload or delete procedure returns.
type FileOutcome struct {
	ErrCd  string `json:"errCd"`
	ErrMsg string `json:"errMsg"`
}

func (o FileOutcome) OK() bool { return o.ErrCd == StatusOK }

// FileDispatcher is the file track. It resolves through the file resolver
// procedure and accepts binary arguments.
type FileDispatcher struct {
	p *pipeline
}

func NewFile(dbConn *sqlx.DB, opt Options, log *zap.Logger) *FileDispatcher {
	return &FileDispatcher{p: newPipeline(dbConn, opt, opt.FileResolver, TrackFile, log)}
}

// Dispatch returns FILEDATA columns as base64 text.
func (d *FileDispatcher) Dispatch(ctx context.Context, req FileRequest) (ResultSet, error) {
	return d.p.run(ctx, req.call(false), ModeQuery)
}

// Retrieve returns FILEDATA columns as readers over the raw bytes.
func (d *FileDispatcher) Retrieve(ctx context.Context, req FileRequest) (ResultSet, error) {
	return d.p.run(ctx, req.call(false), ModeStream)
}

// Upload stores files and reports one outcome per returned row.
func (d *FileDispatcher) Upload(ctx context.Context, req FileRequest) ([]FileOutcome, error) {
	rows, err := d.p.run(ctx, req.call(true), ModeStream)
	if err != nil {
		return nil, err
	}
	return outcomes(rows), nil
}

// Delete removes files and reports one outcome per returned row.
func (d *FileDispatcher) Delete(ctx context.Context, req FileRequest) ([]FileOutcome, error) {
	rows, err := d.p.run(ctx, req.call(true), ModeQuery)
	if err != nil {
		return nil, err
	}
	return outcomes(rows), nil
}

// Prepare resolves and builds the call without executing it.
func (d *FileDispatcher) Prepare(ctx context.Context, req FileRequest) (ProcedureMetadata, CallPlan, error) {
	return d.p.prepareOnly(ctx, req.call(false))
}

func (r FileRequest) call(requireParams bool) call {
	return call{
		rptCd:         r.RptCd,
		jobGb:         r.JobGb,
		empNo:         r.EmpNo,
		params:        r.Params,
		client:        r.Client,
		requestID:     r.RequestID,
		requireParams: requireParams,
	}
}

// outcomes maps status rows, treating a missing ERRCD as success.
func outcomes(rows ResultSet) []FileOutcome {
	out := make([]FileOutcome, 0, len(rows))
	for _, row := range rows {
		cd := row.String("ERRCD", "")
		if cd == "" {
			cd = StatusOK
		}
		out = append(out, FileOutcome{ErrCd: cd, ErrMsg: row.String("ERRMSG", "")})
	}
	return out
}
