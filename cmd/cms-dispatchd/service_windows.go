//go:build windows

package main

import (
	"go.uber.org/zap"

	"cms-dispatch/internal/logger"
	"cms-dispatch/internal/platform/autostart"
)

func runAsService() bool {
	isService, err := autostart.IsWindowsService()
	if err != nil || !isService {
		return false
	}

	app := &serverApp{}
	if err := autostart.RunService(autostart.ServiceName, app); err != nil {
		logger.NewStderr().Error("windows service failed", zap.Error(err))
	}
	return true
}
