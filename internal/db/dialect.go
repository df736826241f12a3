package db

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cms-dispatch/internal/config"
)

// Dialect renders procedure invocations for one backend.
type Dialect string

const (
	DialectMySQL Dialect = "mysql"
	DialectMSSQL Dialect = "mssql"
)

var procedureNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$#]*(\.[A-Za-z_][A-Za-z0-9_$#]*)?$`)

func DialectFor(driver config.DBDriver) (Dialect, error) {
	switch driver {
	case config.DBDriverMySQL:
		return DialectMySQL, nil
	case config.DBDriverMSSQL:
		return DialectMSSQL, nil
	default:
		return "", fmt.Errorf("unsupported driver: %q", driver)
	}
}

// DriverName is the database/sql driver the dialect talks through.
func (d Dialect) DriverName() string {
	if d == DialectMSSQL {
		return "sqlserver"
	}
	return "mysql"
}

// CallStatement returns a callable statement with one placeholder per argument.
func (d Dialect) CallStatement(procedure string, argc int) string {
	var b strings.Builder
	switch d {
	case DialectMSSQL:
		b.WriteString("EXEC ")
		b.WriteString(procedure)
		for i := 0; i < argc; i++ {
			if i == 0 {
				b.WriteString(" ")
			} else {
				b.WriteString(", ")
			}
			b.WriteString("@p")
			b.WriteString(strconv.Itoa(i + 1))
		}
	default:
		b.WriteString("CALL ")
		b.WriteString(procedure)
		b.WriteString("(")
		for i := 0; i < argc; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
		}
		b.WriteString(")")
	}
	return b.String()
}

func (d Dialect) procedureExistsQuery() string {
	if d == DialectMSSQL {
		return `SELECT COUNT(1) FROM sys.objects WHERE object_id = OBJECT_ID(@p1) AND type IN (N'P', N'PC')`
	}
	return `SELECT COUNT(1) FROM information_schema.ROUTINES WHERE ROUTINE_SCHEMA = DATABASE() AND ROUTINE_TYPE = 'PROCEDURE' AND ROUTINE_NAME = ?`
}

// ValidProcedureName guards the only identifier that is spliced into
// statement text rather than bound.
func ValidProcedureName(name string) bool {
	return procedureNameRe.MatchString(name)
}
