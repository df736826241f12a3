//go:build windows

package autostart

import (
	"errors"
	"fmt"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

const (
	pollInterval       = 300 * time.Millisecond
	defaultWaitTimeout = 30 * time.Second
	recoveryResetSecs  = 24 * 60 * 60
)

var recovery = []mgr.RecoveryAction{
	{Type: mgr.ServiceRestart, Delay: 5 * time.Second},
	{Type: mgr.ServiceRestart, Delay: 30 * time.Second},
	{Type: mgr.NoAction},
}

// Install registers exePath as an auto-start service, or repoints an
// existing registration at it. created reports whether the service is new.
func Install(name, exePath string) (created bool, err error) {
	if name == "" || exePath == "" {
		return false, errors.New("service name and executable path are required")
	}
	abs, err := filepath.Abs(exePath)
	if err != nil {
		return false, err
	}

	m, err := mgr.Connect()
	if err != nil {
		return false, err
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	switch {
	case errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST):
		s, err = m.CreateService(name, abs, mgr.Config{
			StartType:        mgr.StartAutomatic,
			DelayedAutoStart: true,
			DisplayName:      serviceDisplayName,
			Description:      serviceDescription,
		})
		if err != nil {
			return false, err
		}
		created = true
	case err != nil:
		return false, err
	}
	defer s.Close()

	if !created {
		cfg, err := s.Config()
		if err != nil {
			return false, err
		}
		cfg.BinaryPathName = syscall.EscapeArg(abs)
		cfg.StartType = mgr.StartAutomatic
		cfg.DelayedAutoStart = true
		cfg.DisplayName = serviceDisplayName
		cfg.Description = serviceDescription
		if err := s.UpdateConfig(cfg); err != nil {
			return false, err
		}
	}

	if err := s.SetRecoveryActions(recovery, recoveryResetSecs); err != nil {
		return created, fmt.Errorf("set recovery actions: %w", err)
	}
	return created, nil
}

// Remove stops the service if needed and deletes its registration.
func Remove(name string, timeout time.Duration) error {
	if err := Stop(name, timeout); err != nil {
		return err
	}
	return withService(name, func(s *mgr.Service) error {
		return s.Delete()
	})
}

func Start(name string, timeout time.Duration) error {
	return withService(name, func(s *mgr.Service) error {
		st, err := s.Query()
		if err == nil && st.State == svc.Running {
			return nil
		}
		if err == nil && st.State != svc.StartPending {
			if err := s.Start(); err != nil && !errors.Is(err, windows.ERROR_SERVICE_ALREADY_RUNNING) {
				return err
			}
		}
		return waitFor(s, svc.Running, timeout)
	})
}

func Stop(name string, timeout time.Duration) error {
	return withService(name, func(s *mgr.Service) error {
		st, err := s.Query()
		if err == nil && st.State == svc.Stopped {
			return nil
		}
		if err == nil && st.State != svc.StopPending {
			if _, err := s.Control(svc.Stop); err != nil && !errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE) {
				return err
			}
		}
		return waitFor(s, svc.Stopped, timeout)
	})
}

func Status(name string) (State, error) {
	var state State
	err := withService(name, func(s *mgr.Service) error {
		st, err := s.Query()
		if err != nil {
			return err
		}
		state = stateOf(st.State)
		return nil
	})
	if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
		return StateNotInstalled, nil
	}
	return state, err
}

func withService(name string, fn func(s *mgr.Service) error) error {
	if name == "" {
		return errors.New("service name is required")
	}
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func waitFor(s *mgr.Service, want svc.State, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		st, err := s.Query()
		if err != nil {
			return err
		}
		if st.State == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service still %s after %s, want %s", stateOf(st.State), timeout, stateOf(want))
		}
		<-ticker.C
	}
}

func stateOf(s svc.State) State {
	switch s {
	case svc.Stopped:
		return StateStopped
	case svc.StartPending:
		return StateStarting
	case svc.Running:
		return StateRunning
	case svc.StopPending:
		return StateStopping
	default:
		return StateOther
	}
}
