package dispatch

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"cms-dispatch/internal/db"
)

func TestDispatchLiveMySQL(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set; skipping mysql integration test")
	}

	conn, err := sqlx.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, conn.PingContext(ctx))

	opt := testOptions()
	opt.Limits.MaxFileSize = 50 << 20
	ok, err := db.ProcedureExists(ctx, conn, opt.Dialect, opt.PlainResolver)
	require.NoError(t, err)
	if !ok {
		t.Skipf("%s not installed; skipping", opt.PlainResolver)
	}

	d := New(conn, opt, zaptest.NewLogger(t))
	rows, err := d.Dispatch(ctx, Request{RptCd: "NOTICE", JobGb: "GET", EmpNo: "admin", Client: webClient})
	if err != nil {
		// Business refusals are fine; driver failures are not.
		assert.NotErrorIs(t, err, ErrDatabaseOperationFailed)
		return
	}
	assert.LessOrEqual(t, len(rows), opt.Limits.MaxResultSize)
}
