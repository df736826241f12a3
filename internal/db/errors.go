package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	mssql "github.com/microsoft/go-mssqldb"
)

// ErrorNumber extracts the server error number from a driver error.
func ErrorNumber(err error) (int, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return int(myErr.Number), true
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return int(msErr.Number), true
	}
	return 0, false
}
