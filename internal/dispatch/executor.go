package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"

	"go.uber.org/zap"

	"cms-dispatch/internal/db"
	"cms-dispatch/internal/metrics"
)

// FileDataColumn is the large-object column the executor special-cases.
const FileDataColumn = "FILEDATA"

// Mode selects how FILEDATA values are surfaced.
type Mode int

const (
	// ModeQuery returns FILEDATA as base64 text.
	ModeQuery Mode = iota
	// ModeStream returns FILEDATA as an io.Reader over the raw bytes.
	ModeStream
)

type Executor struct {
	dialect db.Dialect
	limits  Limits
	track   string
	log     *zap.Logger
}

func NewExecutor(dialect db.Dialect, limits Limits, track string, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{dialect: dialect, limits: limits, track: track, log: log}
}

// Execute runs plan as a callable statement and collects its first result
// set. A call that yields no result set returns an empty ResultSet.
func (e *Executor) Execute(ctx context.Context, q Queryer, rptCd string, plan CallPlan, mode Mode) (ResultSet, error) {
	args := make([]any, len(plan.Args))
	for i, p := range plan.Args {
		switch p.Kind() {
		case KindBinary:
			if e.limits.MaxFileSize > 0 && int64(len(p.data)) > e.limits.MaxFileSize {
				return nil, sizeError(StageExecute, rptCd, len(p.data), e.limits.MaxFileSize)
			}
			args[i] = p.data
		default:
			args[i] = p.text
		}
	}

	stmt := e.dialect.CallStatement(plan.Procedure, len(args))
	rows, err := q.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, newError(ErrDatabaseOperationFailed, StageExecute, rptCd, "", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			metrics.RecordReleaseFailure("rows")
			e.log.Warn("closing result set failed",
				zap.String("rptCd", rptCd),
				zap.String("procedure", plan.Procedure),
				zap.Error(err))
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return nil, newError(ErrDatabaseOperationFailed, StageExecute, rptCd, "", err)
	}

	out := make(ResultSet, 0)
	if len(cols) == 0 {
		return out, nil
	}

	limit := e.limits.MaxResultSize
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			metrics.RecordTruncation(e.track)
			e.log.Warn("result size exceeds limit, truncating",
				zap.String("rptCd", rptCd),
				zap.String("procedure", plan.Procedure),
				zap.Int("limit", limit))
			break
		}

		vals, err := rows.SliceScan()
		if err != nil {
			return nil, newError(ErrDatabaseOperationFailed, StageExecute, rptCd, "", err)
		}
		for i, col := range cols {
			vals[i] = e.normalize(rptCd, col, vals[i], mode)
		}
		out = append(out, NewRow(cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, newError(ErrDatabaseOperationFailed, StageExecute, rptCd, "", err)
	}

	return out, nil
}

func (e *Executor) normalize(rptCd, col string, v any, mode Mode) any {
	if v == nil {
		return ""
	}
	b, isBytes := v.([]byte)
	if !isBytes {
		return v
	}
	if !strings.EqualFold(col, FileDataColumn) {
		return string(b)
	}

	if mode == ModeStream {
		return bytes.NewReader(b)
	}
	if e.limits.MaxFileSize > 0 && int64(len(b)) > e.limits.MaxFileSize {
		metrics.RecordOversizedRetrieval()
		e.log.Warn("retrieved file exceeds size limit",
			zap.String("rptCd", rptCd),
			zap.Int("size", len(b)),
			zap.Int64("limit", e.limits.MaxFileSize))
	}
	return base64.StdEncoding.EncodeToString(b)
}
