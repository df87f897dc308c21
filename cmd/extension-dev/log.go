package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/xhd2015/extension-dev/config"
	"github.com/xhd2015/extension-dev/log"
)

const logDirName = ".extension-dev"

// openLogger logs to the console and appends JSON lines to
// ~/.extension-dev/extension-dev.log. The returned func closes the file.
func openLogger(level string) (log.Logger, func(), error) {
	if level == "" {
		level = os.Getenv(config.EnvLogLevel)
	}
	if level == "" && config.IsDevelopmentMode() {
		level = "debug"
	}

	file, err := openLogFile()
	if err != nil {
		return nil, nil, err
	}
	return log.NewConsole(level, file), func() { file.Close() }, nil
}

func openLogFile() (io.WriteCloser, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(homeDir, logDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "extension-dev.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
