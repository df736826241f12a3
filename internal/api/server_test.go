package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cms-dispatch/internal/api/middleware"
	"cms-dispatch/internal/config"
	"cms-dispatch/internal/dispatch"
)

type stubPlain struct{ last dispatch.Request }

func (s *stubPlain) Dispatch(_ context.Context, req dispatch.Request) (dispatch.ResultSet, error) {
	s.last = req
	if req.EmpNo == "" {
		return nil, &dispatch.Error{Kind: dispatch.ErrUnauthenticated, Stage: dispatch.StageAuth, RptCd: req.RptCd}
	}
	return dispatch.ResultSet{dispatch.NewRow([]string{"OK"}, []any{"1"})}, nil
}

type stubFile struct{}

func (stubFile) Dispatch(context.Context, dispatch.FileRequest) (dispatch.ResultSet, error) {
	return dispatch.ResultSet{}, nil
}

func (stubFile) Upload(context.Context, dispatch.FileRequest) ([]dispatch.FileOutcome, error) {
	return nil, nil
}

func (stubFile) Delete(context.Context, dispatch.FileRequest) ([]dispatch.FileOutcome, error) {
	return nil, nil
}

func (stubFile) Retrieve(context.Context, dispatch.FileRequest) (dispatch.ResultSet, error) {
	return dispatch.ResultSet{}, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ServiceToken = "svc"
	return cfg
}

func TestRouterDispatch(t *testing.T) {
	plain := &stubPlain{}
	router, err := NewRouter(Deps{Config: testConfig(), Plain: plain, File: stubFile{}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/dispatch/NOTICE", strings.NewReader(`{"jobGb":"GET","params":["a"]}`))
	req.Header.Set("Authorization", "Bearer svc")
	req.Header.Set(middleware.EmpNoHeader, "E001")
	req.Header.Set("X-Forwarded-For", "10.1.2.3")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "E001", plain.last.EmpNo)
	assert.Equal(t, "10.1.2.3", plain.last.Client.IP)
	assert.Equal(t, rec.Header().Get(middleware.RequestIDHeader), plain.last.RequestID)
}

func TestRouterAnonymousDispatchIsUnauthenticated(t *testing.T) {
	router, err := NewRouter(Deps{Config: testConfig(), Plain: &stubPlain{}, File: stubFile{}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/notice/list", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterNotFoundAndMetrics(t *testing.T) {
	router, err := NewRouter(Deps{Config: testConfig(), Plain: &stubPlain{}, File: stubFile{}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cms_dispatch_http_requests_total")
}

func TestNewRouterRequiresCredentialsConfig(t *testing.T) {
	cfg := config.Default()
	_, err := NewRouter(Deps{Config: cfg, Plain: &stubPlain{}, File: stubFile{}})
	assert.Error(t, err)

	_, err = NewRouter(Deps{Config: testConfig()})
	assert.Error(t, err)
}

func TestValidateListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{addr: "127.0.0.1:8080"},
		{addr: "", wantErr: true},
		{addr: "8080", wantErr: true},
		{addr: ":8080", wantErr: true},
		{addr: "localhost:70000", wantErr: true},
	}
	for _, tt := range tests {
		err := validateListenAddr(tt.addr)
		if tt.wantErr {
			assert.Error(t, err, tt.addr)
		} else {
			assert.NoError(t, err, tt.addr)
		}
	}
}
