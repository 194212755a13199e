package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables that override file settings
const (
	EnvDatabaseDriver  = "TASK_ORCH_DATABASE_DRIVER"
	EnvDatabaseDSN     = "TASK_ORCH_DATABASE_DSN"
	EnvLockDir         = "TASK_ORCH_LOCK_DIR"
	EnvLogDir          = "TASK_ORCH_LOG_DIR"
	EnvSMTPPassword    = "TASK_ORCH_SMTP_PASSWORD"
	EnvObjectAccessKey = "TASK_ORCH_OBJECT_STORE_ACCESS_KEY"
	EnvObjectSecretKey = "TASK_ORCH_OBJECT_STORE_SECRET_KEY"
	EnvObjectUseSSL    = "TASK_ORCH_OBJECT_STORE_USE_SSL"
)

func applyEnv(cfg *Config) error {
	cfg.General.DatabaseDriver = envString(EnvDatabaseDriver, cfg.General.DatabaseDriver)
	cfg.General.DatabaseDSN = envString(EnvDatabaseDSN, cfg.General.DatabaseDSN)
	cfg.General.LockDir = envString(EnvLockDir, cfg.General.LockDir)
	cfg.General.LogDir = envString(EnvLogDir, cfg.General.LogDir)
	cfg.Mail.Password = envString(EnvSMTPPassword, cfg.Mail.Password)
	cfg.ObjectStore.AccessKey = envString(EnvObjectAccessKey, cfg.ObjectStore.AccessKey)
	cfg.ObjectStore.SecretKey = envString(EnvObjectSecretKey, cfg.ObjectStore.SecretKey)

	useSSL, err := envBool(EnvObjectUseSSL, cfg.ObjectStore.UseSSL)
	if err != nil {
		return err
	}
	cfg.ObjectStore.UseSSL = useSSL
	return nil
}

func envString(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	if v, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}
