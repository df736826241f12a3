//go:build !windows

package autostart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStubsReportUnsupported(t *testing.T) {
	isSvc, err := IsWindowsService()
	assert.NoError(t, err)
	assert.False(t, isSvc)

	_, err = Install(ServiceName, "/usr/local/bin/cms-dispatchd")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, Start(ServiceName, time.Second), ErrUnsupported)
	assert.ErrorIs(t, Stop(ServiceName, time.Second), ErrUnsupported)
	assert.ErrorIs(t, Remove(ServiceName, time.Second), ErrUnsupported)
	_, err = Status(ServiceName)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, RunService(ServiceName, nil), ErrUnsupported)
}
