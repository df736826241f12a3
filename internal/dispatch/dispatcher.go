package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"cms-dispatch/internal/codec"
	"cms-dispatch/internal/config"
	"cms-dispatch/internal/db"
	"cms-dispatch/internal/metrics"
)

const (
	TrackPlain = "plain"
	TrackFile  = "file"
)

type Options struct {
	Dialect       db.Dialect
	PlainResolver string
	FileResolver  string
	Delimiter     string
	Limits        Limits
	QueryTimeout  time.Duration
}

func OptionsFromConfig(cfg config.Config) (Options, error) {
	dialect, err := db.DialectFor(cfg.DB.Driver)
	if err != nil {
		return Options{}, err
	}
	d := cfg.Dispatch
	return Options{
		Dialect:       dialect,
		PlainResolver: d.PlainResolver,
		FileResolver:  d.FileResolver,
		Delimiter:     d.ParamDelimiter,
		Limits: Limits{
			MaxFileSize:   d.MaxFileSize,
			MaxResultSize: d.MaxResultSize,
		},
		QueryTimeout: d.QueryTimeout,
	}, nil
}

// Request is a plain-track dispatch. Params are raw caller values; the
// dispatcher escapes them.
type Request struct {
	RptCd     string
	JobGb     string
	EmpNo     string
	Params    []string
	Client    Client
	RequestID string
}

// Dispatcher is the plain (text-only) track.
type Dispatcher struct {
	p *pipeline
}

func New(dbConn *sqlx.DB, opt Options, log *zap.Logger) *Dispatcher {
	return &Dispatcher{p: newPipeline(dbConn, opt, opt.PlainResolver, TrackPlain, log)}
}

// Dispatch runs AuthCheck, ResolveMetadata, ValidateArity, BuildCall,
// Execute and DecodeResults in order; the first failure ends the dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (ResultSet, error) {
	return d.p.run(ctx, req.call(), ModeQuery)
}

// Prepare resolves and builds the call without executing it.
func (d *Dispatcher) Prepare(ctx context.Context, req Request) (ProcedureMetadata, CallPlan, error) {
	return d.p.prepareOnly(ctx, req.call())
}

func (r Request) call() call {
	return call{
		rptCd:     r.RptCd,
		jobGb:     r.JobGb,
		empNo:     r.EmpNo,
		params:    TextParams(r.Params),
		client:    r.Client,
		requestID: r.RequestID,
	}
}

type call struct {
	rptCd         string
	jobGb         string
	empNo         string
	params        []Param
	client        Client
	requestID     string
	requireParams bool
}

type pipeline struct {
	db       *sqlx.DB
	resolver *Resolver
	exec     *Executor
	delim    string
	limits   Limits
	timeout  time.Duration
	track    string
	log      *zap.Logger
}

func newPipeline(dbConn *sqlx.DB, opt Options, resolverProc, track string, log *zap.Logger) *pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("dispatch").With(zap.String("track", track))
	return &pipeline{
		db:       dbConn,
		resolver: NewResolver(opt.Dialect, resolverProc),
		exec:     NewExecutor(opt.Dialect, opt.Limits, track, log),
		delim:    opt.Delimiter,
		limits:   opt.Limits,
		timeout:  opt.QueryTimeout,
		track:    track,
		log:      log,
	}
}

func (p *pipeline) run(ctx context.Context, c call, mode Mode) (ResultSet, error) {
	start := time.Now()
	rows, err := p.runStages(ctx, c, mode)
	metrics.RecordDispatch(p.track, jobLabel(c.jobGb), Code(err), time.Since(start))
	return rows, err
}

func (p *pipeline) runStages(ctx context.Context, c call, mode Mode) (ResultSet, error) {
	log := p.callLogger(c)

	params, err := p.admit(log, c)
	if err != nil {
		return nil, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	conn, err := p.acquire(ctx, log, c.rptCd)
	if err != nil {
		return nil, err
	}
	defer p.release(log, conn)

	meta, plan, err := p.prepare(ctx, conn, log, c, params)
	if err != nil {
		return nil, err
	}

	rows, err := p.exec.Execute(ctx, conn, c.rptCd, plan, mode)
	if err != nil {
		fields := []zap.Field{
			zap.String("procedure", meta.Procedure),
			zap.String("stage", string(stageOf(err))),
			zap.Error(err),
		}
		if n, ok := db.ErrorNumber(err); ok {
			fields = append(fields, zap.Int("dbErrNo", n))
		}
		log.Error("procedure execution failed", fields...)
		return nil, err
	}

	decode(rows)
	log.Debug("dispatch completed", zap.String("procedure", meta.Procedure), zap.Int("rows", len(rows)))
	return rows, nil
}

func (p *pipeline) prepareOnly(ctx context.Context, c call) (ProcedureMetadata, CallPlan, error) {
	log := p.callLogger(c)

	params, err := p.admit(log, c)
	if err != nil {
		return ProcedureMetadata{}, CallPlan{}, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	conn, err := p.acquire(ctx, log, c.rptCd)
	if err != nil {
		return ProcedureMetadata{}, CallPlan{}, err
	}
	defer p.release(log, conn)

	return p.prepare(ctx, conn, log, c, params)
}

// admit checks identity, escapes textual parameters and rejects oversized
// binaries before any connection is taken.
func (p *pipeline) admit(log *zap.Logger, c call) ([]Param, error) {
	if strings.TrimSpace(c.empNo) == "" {
		log.Error("authentication error: empNo is empty")
		return nil, newError(ErrUnauthenticated, StageAuth, c.rptCd, "", nil)
	}
	if c.requireParams && len(c.params) == 0 {
		log.Error("parameters are required")
		return nil, newError(ErrInvalidParameter, StageAuth, c.rptCd, "parameters are required", nil)
	}

	params := make([]Param, len(c.params))
	for i, prm := range c.params {
		if prm.IsBinary() {
			params[i] = prm
			continue
		}
		params[i] = Text(codec.Escape(prm.text))
	}

	if err := checkBinarySizes(StageBuild, c.rptCd, params, p.limits.MaxFileSize); err != nil {
		log.Error("binary parameter rejected", zap.Error(err))
		return nil, err
	}
	return params, nil
}

func (p *pipeline) prepare(ctx context.Context, q Queryer, log *zap.Logger, c call, params []Param) (ProcedureMetadata, CallPlan, error) {
	serialized, err := codec.JoinParams(metadataValues(params), p.delim)
	if err != nil {
		log.Error("parameter serialization failed", zap.Error(err))
		return ProcedureMetadata{}, CallPlan{}, newError(ErrInvalidParameter, StageResolve, c.rptCd, "", err)
	}

	meta, err := p.resolver.Resolve(ctx, q, ResolveRequest{
		RptCd:  c.rptCd,
		EmpNo:  c.empNo,
		JobGb:  c.jobGb,
		Params: serialized,
		Client: c.client,
	})
	if err != nil {
		log.Error("metadata resolution failed",
			zap.String("resolver", p.resolver.Procedure()),
			zap.String("errCd", meta.ErrCd),
			zap.String("errMsg", meta.ErrMsg),
			zap.Error(err))
		return meta, CallPlan{}, err
	}

	if len(params) != meta.ParamCount {
		log.Error("invalid parameter count",
			zap.String("procedure", meta.Procedure),
			zap.Int("expected", meta.ParamCount),
			zap.Int("provided", len(params)))
		return meta, CallPlan{}, arityError(c.rptCd, meta.ParamCount, len(params))
	}

	plan, err := BuildCall(meta, c.rptCd, params, p.limits)
	if err != nil {
		log.Error("building call failed", zap.String("procedure", meta.Procedure), zap.Error(err))
		return meta, CallPlan{}, err
	}

	if p.track == TrackFile {
		meta.Call = plan.Redacted()
	} else {
		meta.Call = plan.String()
	}
	log.Debug("call built", zap.String("call", meta.Call))
	return meta, plan, nil
}

func (p *pipeline) acquire(ctx context.Context, log *zap.Logger, rptCd string) (*sqlx.Conn, error) {
	if p.db == nil {
		return nil, newError(ErrDatabaseOperationFailed, StageResolve, rptCd, "database connection unavailable", nil)
	}
	conn, err := p.db.Connx(ctx)
	if err != nil {
		log.Error("acquiring connection failed", zap.Error(err))
		return nil, newError(ErrDatabaseOperationFailed, StageResolve, rptCd, "", err)
	}
	return conn, nil
}

func (p *pipeline) release(log *zap.Logger, conn *sqlx.Conn) {
	if err := conn.Close(); err != nil {
		metrics.RecordReleaseFailure("conn")
		log.Warn("releasing connection failed", zap.Error(err))
	}
}

func (p *pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

func (p *pipeline) callLogger(c call) *zap.Logger {
	fields := []zap.Field{
		zap.String("rptCd", c.rptCd),
		zap.String("jobGb", c.jobGb),
		zap.Int("params", len(c.params)),
	}
	if c.requestID != "" {
		fields = append(fields, zap.String("requestId", c.requestID))
	}
	return p.log.With(fields...)
}

// decode restores escaped text in place.
func decode(rows ResultSet) {
	for _, row := range rows {
		for i, v := range row.vals {
			if s, ok := v.(string); ok {
				row.vals[i] = codec.Unescape(s)
			}
		}
	}
}

func jobLabel(jobGb string) string {
	switch j := strings.ToUpper(strings.TrimSpace(jobGb)); j {
	case "GET", "SET", "DELETE":
		return j
	default:
		return "OTHER"
	}
}

func stageOf(err error) Stage {
	var de *Error
	if errors.As(err, &de) {
		return de.Stage
	}
	return ""
}
