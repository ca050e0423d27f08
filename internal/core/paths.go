package core

import "path/filepath"

func GetSocketPath() string {
	return filepath.Join(Config.ConfigPath, SocketName)
}

func GetPIDFilePath() string {
	return filepath.Join(Config.ConfigPath, PidFileName)
}

func GetDatabasePath() string {
	return filepath.Join(Config.ConfigPath, DatabaseName)
}

func GetConfigFilePath() string {
	return filepath.Join(Config.ConfigPath, ConfigFileName)
}
