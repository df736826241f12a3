package db

import (
	"context"

	"github.com/go-sql-driver/mysql"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var msdsnLogToZapLog = map[msdsn.Log]zapcore.Level{
	msdsn.LogDebug:    zapcore.DebugLevel,
	msdsn.LogMessages: zapcore.InfoLevel,
	msdsn.LogErrors:   zapcore.ErrorLevel,
}

type zapContextLogger struct {
	logger *zap.Logger
}

func (l *zapContextLogger) Log(_ context.Context, category msdsn.Log, msg string) {
	level, ok := msdsnLogToZapLog[category]
	if !ok {
		level = zapcore.InfoLevel
	}
	l.logger.Log(level, msg)
}

// InstallDriverLoggers routes both drivers' internal logging through log.
func InstallDriverLoggers(log *zap.Logger) error {
	if log == nil {
		return nil
	}
	mssql.SetContextLogger(&zapContextLogger{logger: log.Named("mssql")})
	return mysql.SetLogger(zap.NewStdLog(log.Named("mysql")))
}
