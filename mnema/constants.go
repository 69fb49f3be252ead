package mnema

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName      = "mnema"
	DefaultDatabaseType = "libsql"
	DefaultDatabaseFile = "mnema.db"
)

var (
	DefaultConfigPath  = filepath.Join(userHome(), ".config", DefaultAppName)
	DefaultDataDir     = filepath.Join(userHome(), ".local", "share", DefaultAppName)
	DefaultDatabaseDSN = filepath.Join(DefaultDataDir, DefaultDatabaseFile)
	DefaultArchiveDir  = filepath.Join(DefaultDataDir, "sessions")
	DefaultAttachDir   = filepath.Join(DefaultDataDir, "attach")
)

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
