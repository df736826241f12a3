// Package autostart hosts the daemon as a Windows service and registers it
// with the service control manager. Other platforms get stubs that report
// ErrUnsupported.
package autostart

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

const (
	ServiceName = "cms-dispatchd"

	serviceDisplayName = "CMS Dispatch API"
	serviceDescription = "Resolves operation codes to stored procedures and serves their results over HTTP."
)

var ErrUnsupported = errors.New("windows service control is not supported on this OS")

// State is the service state as reported by the service control manager.
type State string

const (
	StateNotInstalled State = "not-installed"
	StateStopped      State = "stopped"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateOther        State = "other"
)

// ServiceApp is what the service control loop drives.
type ServiceApp interface {
	Start() error
	Stop(ctx context.Context)
	Errors() <-chan error
	Logger() *zap.Logger
}
