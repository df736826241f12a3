//go:build windows

package autostart

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

const stopTimeout = 10 * time.Second

func IsWindowsService() (bool, error) {
	return svc.IsWindowsService()
}

// RunService blocks in the service control loop until the app stops.
func RunService(name string, app ServiceApp) error {
	return svc.Run(name, &handler{app: app})
}

type handler struct {
	app ServiceApp
}

func (h *handler) Execute(_ []string, req <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	status <- svc.Status{State: svc.StartPending}

	if err := h.app.Start(); err != nil {
		h.log().Error("service start failed", zap.Error(err))
		status <- svc.Status{State: svc.Stopped}
		return false, 1
	}
	status <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}

	shutdown := func(code uint32) (bool, uint32) {
		status <- svc.Status{State: svc.StopPending}
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		h.app.Stop(ctx)
		status <- svc.Status{State: svc.Stopped}
		return false, code
	}

	for {
		select {
		case c := <-req:
			switch c.Cmd {
			case svc.Interrogate:
				status <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				h.log().Info("service stop requested")
				return shutdown(0)
			}
		case err := <-h.app.Errors():
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.log().Error("server stopped", zap.Error(err))
			}
			return shutdown(1)
		}
	}
}

func (h *handler) log() *zap.Logger {
	if l := h.app.Logger(); l != nil {
		return l
	}
	return zap.NewNop()
}
