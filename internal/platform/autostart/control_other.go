//go:build !windows

package autostart

import "time"

func IsWindowsService() (bool, error) { return false, nil }

func RunService(_ string, _ ServiceApp) error { return ErrUnsupported }

func Install(_, _ string) (bool, error) { return false, ErrUnsupported }

func Remove(_ string, _ time.Duration) error { return ErrUnsupported }

func Start(_ string, _ time.Duration) error { return ErrUnsupported }

func Stop(_ string, _ time.Duration) error { return ErrUnsupported }

func Status(_ string) (State, error) { return "", ErrUnsupported }
