package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "resonanced"

// configFormats lists the extensions FindConfigFile looks for, in order.
var configFormats = []string{"toml", "json", "yaml", "yml"}

// PlatformConfigDir is where config.toml lives by default. It follows
// os.UserConfigDir, so XDG_CONFIG_HOME, ~/Library/Application Support and
// %AppData% are honoured on their platforms.
func PlatformConfigDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, appName)
	}
	return hiddenHomeDir()
}

// PlatformDataDir holds the profile database and key file. Linux keeps
// data out of ~/.config per XDG; elsewhere it shares the config dir.
func PlatformDataDir() string {
	if runtime.GOOS != "linux" {
		return PlatformConfigDir()
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return hiddenHomeDir()
	}
	return filepath.Join(home, ".local", "share", appName)
}

func hiddenHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+appName)
}

// FindConfigFile returns the first config.<ext> found in the working
// directory, the config dir, then the data dir. Empty means none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir(), DataDir()} {
		for _, ext := range configFormats {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
