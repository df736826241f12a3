package dispatch

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"cms-dispatch/internal/db"
)

const (
	plainResolverCall = "CALL UP_MAPVIEW_SELECT(?, ?, ?, ?, ?, ?, ?)"
	fileResolverCall  = "CALL UP_MAPVIEWFILES_SELECT(?, ?, ?, ?, ?, ?, ?)"
)

var metaColumns = []string{"ERRCD", "ERRMSG", "JOBNM", "JOBTYPE", "PARAMCNT"}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func testOptions() Options {
	return Options{
		Dialect:       db.DialectMySQL,
		PlainResolver: "UP_MAPVIEW_SELECT",
		FileResolver:  "UP_MAPVIEWFILES_SELECT",
		Limits:        Limits{MaxFileSize: 16, MaxResultSize: 50},
	}
}

var webClient = Client{IP: "10.0.0.1", UserAgent: "Mozilla/5.0"}

func metaRow(errCd, errMsg, proc string, paramCnt any) *sqlmock.Rows {
	return sqlmock.NewRows(metaColumns).AddRow(errCd, errMsg, proc, "", paramCnt)
}

func TestDispatchNotice(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := New(sqlxDB, testOptions(), zap.NewNop())

	mock.ExpectQuery(plainResolverCall).
		WithArgs("E001", "10.0.0.1", "NOTICE", "GET",
			"2024-01-01\u25022024-12-31\u2502it\u02EEs", "W", "Mozilla/5.0").
		WillReturnRows(metaRow("00", "", "UP_NOTICE_SELECT", int64(3)))
	mock.ExpectQuery("CALL UP_NOTICE_SELECT(?, ?, ?)").
		WithArgs("2024-01-01", "2024-12-31", "it\u02EEs").
		WillReturnRows(sqlmock.NewRows([]string{"NOTICE_ID", "TITLE", "BODY"}).
			AddRow(int64(1), "Holiday\u204F office closed", nil).
			AddRow(int64(2), "Maintenance", "see C:\u2216docs"))

	rows, err := d.Dispatch(context.Background(), Request{
		RptCd:  "NOTICE",
		JobGb:  "GET",
		EmpNo:  "E001",
		Params: []string{"2024-01-01", "2024-12-31", "it's"},
		Client: webClient,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"NOTICE_ID", "TITLE", "BODY"}, rows[0].Columns())
	assert.Equal(t, "Holiday; office closed", rows[0].String("TITLE", ""))
	assert.Equal(t, "", rows[0].String("BODY", "x"))
	assert.Equal(t, `see C:\docs`, rows[1].String("body", ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchArityMismatch(t *testing.T) {
	tests := []struct {
		name     string
		proc     string
		paramCnt any
		provided int
	}{
		{name: "fewer than expected", proc: "UP_RESERVATION_TRANSACTION", paramCnt: "14", provided: 10},
		{name: "more than expected", proc: "UP_NOTICE_SELECT", paramCnt: int64(1), provided: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlxDB, mock := newMock(t)
			core, logs := observer.New(zapcore.ErrorLevel)
			d := New(sqlxDB, testOptions(), zap.New(core))

			params := make([]string, tt.provided)
			for i := range params {
				params[i] = "v"
			}
			mock.ExpectQuery(plainResolverCall).
				WillReturnRows(metaRow("00", "", tt.proc, tt.paramCnt))

			_, err := d.Dispatch(context.Background(), Request{
				RptCd:  "RESERVATIONTRANSACTION",
				JobGb:  "SET",
				EmpNo:  "E001",
				Params: params,
				Client: webClient,
			})
			require.ErrorIs(t, err, ErrArityMismatch)
			assert.Equal(t, "ARITY_MISMATCH", Code(err))

			var de *Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, StageArity, de.Stage)
			assert.Equal(t, "RESERVATIONTRANSACTION", de.RptCd)

			expected, err := toInt(tt.paramCnt)
			require.NoError(t, err)
			assert.Contains(t, de.Error(), fmt.Sprintf("expected %d, provided %d", expected, tt.provided))

			entries := logs.FilterMessage("invalid parameter count").All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.EqualValues(t, expected, fields["expected"])
			assert.EqualValues(t, tt.provided, fields["provided"])

			// Only the resolver ran; the target procedure was never called.
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDispatchCallRendering(t *testing.T) {
	tests := []struct {
		name     string
		params   []string
		metadata string
		args     []driver.Value
		call     string
	}{
		{
			name:     "empty strings",
			params:   []string{"", "", ""},
			metadata: "\u2502\u2502",
			args:     []driver.Value{"", "", ""},
			call:     "UP_NOTICE_SELECT('', '', '')",
		},
		{
			name:     "escaped quote",
			params:   []string{"2024-01-01", "2024-12-31", "it's"},
			metadata: "2024-01-01\u25022024-12-31\u2502it\u02EEs",
			args:     []driver.Value{"2024-01-01", "2024-12-31", "it\u02EEs"},
			call:     "UP_NOTICE_SELECT('2024-01-01', '2024-12-31', 'it\u02EEs')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlxDB, mock := newMock(t)
			d := New(sqlxDB, testOptions(), zap.NewNop())
			req := Request{RptCd: "NOTICE", JobGb: "GET", EmpNo: "E001", Params: tt.params, Client: webClient}

			mock.ExpectQuery(plainResolverCall).
				WithArgs("E001", "10.0.0.1", "NOTICE", "GET", tt.metadata, "W", "Mozilla/5.0").
				WillReturnRows(metaRow("00", "", "UP_NOTICE_SELECT", int64(3)))
			meta, _, err := d.Prepare(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.call, meta.Call)

			mock.ExpectQuery(plainResolverCall).
				WithArgs("E001", "10.0.0.1", "NOTICE", "GET", tt.metadata, "W", "Mozilla/5.0").
				WillReturnRows(metaRow("00", "", "UP_NOTICE_SELECT", int64(3)))
			mock.ExpectQuery("CALL UP_NOTICE_SELECT(?, ?, ?)").
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows([]string{"NOTICE_ID"}).AddRow(int64(1)))

			rows, err := d.Dispatch(context.Background(), req)
			require.NoError(t, err)
			assert.Len(t, rows, 1)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDispatchResolverStatusNotOK(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := New(sqlxDB, testOptions(), zap.NewNop())

	// PARAMCNT is garbage; a non-00 status must fail before it is read.
	mock.ExpectQuery(plainResolverCall).
		WillReturnRows(metaRow("99", "no permission", "", "x"))

	_, err := d.Dispatch(context.Background(), Request{
		RptCd: "NOTICE", JobGb: "GET", EmpNo: "E001", Params: []string{"a"}, Client: webClient,
	})
	require.ErrorIs(t, err, ErrMetadataResolutionFailed)
	assert.Contains(t, err.Error(), "no permission")
	assert.NotErrorIs(t, err, ErrArityMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchMetadataNotFound(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := New(sqlxDB, testOptions(), zap.NewNop())

	mock.ExpectQuery(plainResolverCall).WillReturnRows(sqlmock.NewRows(metaColumns))

	_, err := d.Dispatch(context.Background(), Request{
		RptCd: "UNKNOWN", JobGb: "GET", EmpNo: "E001", Client: webClient,
	})
	require.ErrorIs(t, err, ErrMetadataNotFound)
	assert.Contains(t, err.Error(), "UNKNOWN")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchUnauthenticatedSkipsDatabase(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := New(sqlxDB, testOptions(), zap.NewNop())

	for _, empNo := range []string{"", "   "} {
		_, err := d.Dispatch(context.Background(), Request{
			RptCd: "NOTICE", JobGb: "GET", EmpNo: empNo, Params: []string{"a"},
		})
		require.ErrorIs(t, err, ErrUnauthenticated)
		assert.Equal(t, "UNAUTHENTICATED", Code(err))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchRejectsDelimiterInParam(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := New(sqlxDB, testOptions(), zap.NewNop())

	_, err := d.Dispatch(context.Background(), Request{
		RptCd: "NOTICE", JobGb: "GET", EmpNo: "E001", Params: []string{"a\u2502b"}, Client: webClient,
	})
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchEmptyResult(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := New(sqlxDB, testOptions(), zap.NewNop())

	mock.ExpectQuery(plainResolverCall).WillReturnRows(metaRow("00", "", "UP_NOTICE_SELECT", int64(0)))
	mock.ExpectQuery("CALL UP_NOTICE_SELECT()").
		WillReturnRows(sqlmock.NewRows([]string{"NOTICE_ID"}))

	rows, err := d.Dispatch(context.Background(), Request{
		RptCd: "NOTICE", JobGb: "GET", EmpNo: "E001", Client: webClient,
	})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchTruncatesAtLimit(t *testing.T) {
	sqlxDB, mock := newMock(t)
	opt := testOptions()
	opt.Limits.MaxResultSize = 3
	core, logs := observer.New(zapcore.WarnLevel)
	d := New(sqlxDB, opt, zap.New(core))

	result := sqlmock.NewRows([]string{"N"})
	for i := 0; i < 5; i++ {
		result.AddRow(int64(i))
	}
	mock.ExpectQuery(plainResolverCall).WillReturnRows(metaRow("00", "", "UP_ROWS", int64(0)))
	mock.ExpectQuery("CALL UP_ROWS()").WillReturnRows(result)

	rows, err := d.Dispatch(context.Background(), Request{
		RptCd: "ROWS", JobGb: "GET", EmpNo: "E001", Client: webClient,
	})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, 1, logs.FilterMessage("result size exceeds limit, truncating").Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchDatabaseError(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := New(sqlxDB, testOptions(), zap.NewNop())
	driverErr := errors.New("deadlock found")

	mock.ExpectQuery(plainResolverCall).WillReturnRows(metaRow("00", "", "UP_NOTICE_SELECT", int64(1)))
	mock.ExpectQuery("CALL UP_NOTICE_SELECT(?)").WithArgs("a").WillReturnError(driverErr)

	_, err := d.Dispatch(context.Background(), Request{
		RptCd: "NOTICE", JobGb: "GET", EmpNo: "E001", Params: []string{"a"}, Client: webClient,
	})
	require.ErrorIs(t, err, ErrDatabaseOperationFailed)
	require.ErrorIs(t, err, driverErr)
	assert.Equal(t, "DB_ERROR", Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchCloseErrorIsOnlyLogged(t *testing.T) {
	sqlxDB, mock := newMock(t)
	opt := testOptions()
	opt.Limits.MaxResultSize = 1
	core, logs := observer.New(zapcore.WarnLevel)
	d := New(sqlxDB, opt, zap.New(core))

	mock.ExpectQuery(plainResolverCall).WillReturnRows(metaRow("00", "", "UP_NOTICE_SELECT", int64(0)))
	mock.ExpectQuery("CALL UP_NOTICE_SELECT()").
		WillReturnRows(sqlmock.NewRows([]string{"N"}).AddRow("1").AddRow("2").CloseError(errors.New("close failed")))

	rows, err := d.Dispatch(context.Background(), Request{
		RptCd: "NOTICE", JobGb: "GET", EmpNo: "E001", Client: webClient,
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, logs.FilterMessage("closing result set failed").Len())
}

func TestDispatchMobileClient(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := New(sqlxDB, testOptions(), zap.NewNop())
	ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)"

	mock.ExpectQuery(plainResolverCall).
		WithArgs("E001", "10.0.0.9", "NOTICE", "GET", "", "M", ua).
		WillReturnRows(metaRow("00", "", "UP_NOTICE_SELECT", int64(0)))
	mock.ExpectQuery("CALL UP_NOTICE_SELECT()").WillReturnRows(sqlmock.NewRows([]string{"N"}))

	_, err := d.Dispatch(context.Background(), Request{
		RptCd: "NOTICE", JobGb: "GET", EmpNo: "E001",
		Client: Client{IP: "10.0.0.9", UserAgent: ua},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrepare(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := New(sqlxDB, testOptions(), zap.NewNop())

	mock.ExpectQuery(plainResolverCall).WillReturnRows(metaRow("00", "", "UP_NOTICE_SELECT", int64(2)))

	meta, plan, err := d.Prepare(context.Background(), Request{
		RptCd: "NOTICE", JobGb: "GET", EmpNo: "E001", Params: []string{"a", "O'Neil"}, Client: webClient,
	})
	require.NoError(t, err)
	assert.Equal(t, "UP_NOTICE_SELECT", plan.Procedure)
	assert.Equal(t, "UP_NOTICE_SELECT('a', 'O\u02EENeil')", meta.Call)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileDispatchSizeLimitBeforeConnection(t *testing.T) {
	// Without a pool any connection attempt fails as a database error.
	d := NewFile(nil, testOptions(), zap.NewNop())

	_, err := d.Upload(context.Background(), FileRequest{
		RptCd:  "NOTICEFILESAVE",
		JobGb:  "SET",
		EmpNo:  "E001",
		Params: []Param{Text("7"), Binary(make([]byte, 60))},
		Client: webClient,
	})
	require.ErrorIs(t, err, ErrSizeLimitExceeded)
	assert.NotErrorIs(t, err, ErrDatabaseOperationFailed)

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, StageBuild, de.Stage)
}

func TestFileDispatchOversizedRetrievalWarns(t *testing.T) {
	sqlxDB, mock := newMock(t)
	core, logs := observer.New(zapcore.WarnLevel)
	d := NewFile(sqlxDB, testOptions(), zap.New(core))
	data := bytes.Repeat([]byte{0xAB}, 40)

	mock.ExpectQuery(fileResolverCall).WillReturnRows(metaRow("00", "", "UP_NOTICEFILE_DOWN", int64(1)))
	mock.ExpectQuery("CALL UP_NOTICEFILE_DOWN(?)").WithArgs("3").
		WillReturnRows(sqlmock.NewRows([]string{"FILENM", "FILEDATA"}).AddRow([]byte("big.bin"), data))

	rows, err := d.Dispatch(context.Background(), FileRequest{
		RptCd: "NOTICEFILEDOWN", JobGb: "GET", EmpNo: "E001", Params: []Param{Text("3")}, Client: webClient,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), rows[0].String("FILEDATA", ""))

	entries := logs.FilterMessage("retrieved file exceeds size limit").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 40, entries[0].ContextMap()["size"])
	assert.EqualValues(t, 16, entries[0].ContextMap()["limit"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorRejectsOversizedBinaryAtBind(t *testing.T) {
	sqlxDB, mock := newMock(t)
	exec := NewExecutor(db.DialectMySQL, Limits{MaxFileSize: 4}, TrackFile, zap.NewNop())

	plan := CallPlan{Procedure: "UP_NOTICEFILE_SAVE", Args: []Param{Text("7"), Binary([]byte("12345"))}}
	_, err := exec.Execute(context.Background(), sqlxDB, "NOTICEFILESAVE", plan, ModeStream)
	require.ErrorIs(t, err, ErrSizeLimitExceeded)
	assert.Equal(t, "SIZE_LIMIT_EXCEEDED", Code(err))

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, StageExecute, de.Stage)

	// No statement reached the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileUpload(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := NewFile(sqlxDB, testOptions(), zap.NewNop())
	payload := []byte("hello")

	mock.ExpectQuery(fileResolverCall).
		WithArgs("E001", "10.0.0.1", "NOTICEFILESAVE", "SET", "7\u2502report\u02EE1.pdf\u2502DATA", "W", "Mozilla/5.0").
		WillReturnRows(metaRow("00", "", "UP_NOTICEFILE_SAVE", int64(3)))
	mock.ExpectQuery("CALL UP_NOTICEFILE_SAVE(?, ?, ?)").
		WithArgs("7", "report\u02EE1.pdf", payload).
		WillReturnRows(sqlmock.NewRows([]string{"ERRCD", "ERRMSG"}).AddRow(nil, nil))

	out, err := d.Upload(context.Background(), FileRequest{
		RptCd:  "NOTICEFILESAVE",
		JobGb:  "SET",
		EmpNo:  "E001",
		Params: []Param{Text("7"), Text("report'1.pdf"), Binary(payload)},
		Client: webClient,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].OK())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileUploadRequiresParams(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := NewFile(sqlxDB, testOptions(), zap.NewNop())

	_, err := d.Upload(context.Background(), FileRequest{RptCd: "NOTICEFILESAVE", JobGb: "SET", EmpNo: "E001"})
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileDeleteOutcomes(t *testing.T) {
	sqlxDB, mock := newMock(t)
	d := NewFile(sqlxDB, testOptions(), zap.NewNop())

	mock.ExpectQuery(fileResolverCall).WillReturnRows(metaRow("00", "", "UP_NOTICEFILE_DELETE", int64(1)))
	mock.ExpectQuery("CALL UP_NOTICEFILE_DELETE(?)").WithArgs("12").
		WillReturnRows(sqlmock.NewRows([]string{"ERRCD", "ERRMSG"}).AddRow("10", "file in use"))

	out, err := d.Delete(context.Background(), FileRequest{
		RptCd: "NOTICEFILEDELETE", JobGb: "DELETE", EmpNo: "E001",
		Params: []Param{Text("12")}, Client: webClient,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].OK())
	assert.Equal(t, FileOutcome{ErrCd: "10", ErrMsg: "file in use"}, out[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileDataModes(t *testing.T) {
	data := []byte{0x25, 0x50, 0x44, 0x46}
	fileRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"FILENAME", "FILEDATA"}).AddRow([]byte("a.pdf"), data)
	}
	req := FileRequest{RptCd: "NOTICEFILEDOWN", JobGb: "GET", EmpNo: "E001", Params: []Param{Text("3")}, Client: webClient}

	t.Run("query returns base64", func(t *testing.T) {
		sqlxDB, mock := newMock(t)
		d := NewFile(sqlxDB, testOptions(), zap.NewNop())
		mock.ExpectQuery(fileResolverCall).WillReturnRows(metaRow("00", "", "UP_NOTICEFILE_DOWN", int64(1)))
		mock.ExpectQuery("CALL UP_NOTICEFILE_DOWN(?)").WithArgs("3").WillReturnRows(fileRows())

		rows, err := d.Dispatch(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "a.pdf", rows[0].String("FILENAME", ""))
		assert.Equal(t, "JVBERg==", rows[0].String("FILEDATA", ""))
	})

	t.Run("retrieve returns reader", func(t *testing.T) {
		sqlxDB, mock := newMock(t)
		d := NewFile(sqlxDB, testOptions(), zap.NewNop())
		mock.ExpectQuery(fileResolverCall).WillReturnRows(metaRow("00", "", "UP_NOTICEFILE_DOWN", int64(1)))
		mock.ExpectQuery("CALL UP_NOTICEFILE_DOWN(?)").WithArgs("3").WillReturnRows(fileRows())

		rows, err := d.Retrieve(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		rd, ok := rows[0].Reader("FILEDATA")
		require.True(t, ok)
		got, err := io.ReadAll(rd)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})
}

func TestJobLabel(t *testing.T) {
	assert.Equal(t, "GET", jobLabel(" get "))
	assert.Equal(t, "DELETE", jobLabel("DELETE"))
	assert.Equal(t, "OTHER", jobLabel("PRINT"))
}
