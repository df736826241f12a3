package dispatch

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"cms-dispatch/internal/db"
)

// StatusOK is the only status the resolver procedures report on success.
const StatusOK = "00"

// Queryer is satisfied by *sqlx.DB and by the *sqlx.Conn a dispatch holds.
type Queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

// ProcedureMetadata is what a resolver procedure reports for one operation
// code. It lives for a single dispatch.
type ProcedureMetadata struct {
	ErrCd      string
	ErrMsg     string
	Procedure  string
	JobType    string
	ParamCount int

	// Call is the rendered invocation, filled once the call is built.
	Call string
}

func (m ProcedureMetadata) OK() bool { return m.ErrCd == StatusOK }

type ResolveRequest struct {
	RptCd  string
	EmpNo  string
	JobGb  string
	Params string
	Client Client
}

// Resolver calls one fixed bootstrap procedure with the seven-argument
// signature (empNo, ip, rptCd, jobGb, params, connGb, userAgent).
type Resolver struct {
	dialect   db.Dialect
	procedure string
}

func NewResolver(dialect db.Dialect, procedure string) *Resolver {
	return &Resolver{dialect: dialect, procedure: procedure}
}

func (r *Resolver) Procedure() string { return r.procedure }

func (r *Resolver) Resolve(ctx context.Context, q Queryer, req ResolveRequest) (ProcedureMetadata, error) {
	stmt := r.dialect.CallStatement(r.procedure, 7)
	rows, err := q.QueryxContext(ctx, stmt,
		req.EmpNo,
		req.Client.IP,
		req.RptCd,
		req.JobGb,
		req.Params,
		req.Client.ConnectionClass(),
		req.Client.Agent(),
	)
	if err != nil {
		return ProcedureMetadata{}, newError(ErrDatabaseOperationFailed, StageResolve, req.RptCd, "", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ProcedureMetadata{}, newError(ErrDatabaseOperationFailed, StageResolve, req.RptCd, "", err)
		}
		return ProcedureMetadata{}, newError(ErrMetadataNotFound, StageResolve, req.RptCd,
			"no procedure information found for rptCd: "+req.RptCd, nil)
	}

	raw := make(map[string]any)
	if err := rows.MapScan(raw); err != nil {
		return ProcedureMetadata{}, newError(ErrDatabaseOperationFailed, StageResolve, req.RptCd, "", err)
	}

	meta := ProcedureMetadata{
		ErrCd:     strings.TrimSpace(lookupText(raw, "ERRCD")),
		ErrMsg:    lookupText(raw, "ERRMSG"),
		Procedure: strings.TrimSpace(lookupText(raw, "JOBNM")),
		JobType:   lookupText(raw, "JOBTYPE"),
	}

	if !meta.OK() {
		return meta, newError(ErrMetadataResolutionFailed, StageResolve, req.RptCd,
			"procedure lookup failed: "+meta.ErrMsg, nil)
	}

	count, err := toInt(lookup(raw, "PARAMCNT"))
	if err != nil {
		return meta, newError(ErrMetadataResolutionFailed, StageResolve, req.RptCd, "invalid PARAMCNT", err)
	}
	meta.ParamCount = count

	if !db.ValidProcedureName(meta.Procedure) {
		return meta, newError(ErrMetadataResolutionFailed, StageResolve, req.RptCd,
			fmt.Sprintf("invalid procedure name %q", meta.Procedure), nil)
	}

	return meta, nil
}

func lookup(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func lookupText(m map[string]any, key string) string {
	switch v := lookup(m, key).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("non-integer value %v", n)
		}
		return int(n), nil
	case []byte:
		return strconv.Atoi(strings.TrimSpace(string(n)))
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
