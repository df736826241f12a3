package paths

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const AppName = "cms-dispatch"

func ConfigFilePath() (string, error) {
	return machinePath(filepath.Join("/etc", AppName), "config.yaml")
}

func LoggerFilePath() (string, error) {
	return machinePath(filepath.Join("/var/log", AppName), "server.log")
}

func machinePath(linuxDir, name string) (string, error) {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, AppName, name), nil
	case "linux", "darwin", "freebsd":
		return filepath.Join(linuxDir, name), nil
	default:
		return "", errors.New("unsupported OS for machine-wide files")
	}
}
