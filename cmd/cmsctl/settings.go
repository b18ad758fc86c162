package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sitecms/internal/localstore"
)

type StorageSettings struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	RedisURL string `mapstructure:"redis_url"`
	Prefix   string `mapstructure:"prefix"`
}

type SessionSettings struct {
	// TTL bounds how long a stored admin key survives when the session
	// store is Redis. File-backed stores keep it until `key clear`.
	TTL time.Duration `mapstructure:"ttl"`
}

type Settings struct {
	DocumentURL string          `mapstructure:"document_url"`
	Endpoint    string          `mapstructure:"endpoint"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	RepoDir     string          `mapstructure:"repo_dir"`
	RepoBranch  string          `mapstructure:"repo_branch"`
	CMSPath     string          `mapstructure:"cms_path"`
	Storage     StorageSettings `mapstructure:"storage"`
	Session     SessionSettings `mapstructure:"session"`
}

func defaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cmsctl")
}

func LoadSettings(configFile string) (*Settings, error) {
	v := viper.New()
	v.SetDefault("document_url", "http://localhost:8787/cms")
	v.SetDefault("endpoint", "http://localhost:8787")
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("repo_dir", "./data/site-repo")
	v.SetDefault("repo_branch", "main")
	v.SetDefault("cms_path", "data/cms.json")
	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.path", filepath.Join(defaultConfigDir(), "storage.db"))
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage.prefix", "cmsctl:")
	v.SetDefault("session.ttl", 12*time.Hour)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("cmsctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultConfigDir())
	}

	v.SetEnvPrefix("CMSCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &s, nil
}

type storageHandle interface {
	localstore.Storage
	Close() error
}

type memoryHandle struct{ *localstore.Memory }

func (memoryHandle) Close() error { return nil }

// OpenStorage returns the persistent store and the session store. They share
// one backend except for Redis, where the session copy carries a TTL.
func OpenStorage(s StorageSettings, session SessionSettings) (storageHandle, storageHandle, error) {
	switch strings.ToLower(s.Driver) {
	case "memory":
		return memoryHandle{localstore.NewMemory()}, memoryHandle{localstore.NewMemory()}, nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create storage dir: %w", err)
		}
		db, err := localstore.OpenBolt(s.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, nopCloser{db}, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create storage dir: %w", err)
		}
		db, err := localstore.OpenSQLite(s.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, nopCloser{db}, nil
	case "redis":
		persistent, err := localstore.NewRedis(s.RedisURL, s.Prefix, 0)
		if err != nil {
			return nil, nil, err
		}
		sessionStore, err := localstore.NewRedis(s.RedisURL, s.Prefix+"session:", session.TTL)
		if err != nil {
			_ = persistent.Close()
			return nil, nil, err
		}
		return persistent, sessionStore, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", s.Driver)
	}
}

// nopCloser shares a backend already closed through the persistent handle.
type nopCloser struct{ localstore.Storage }

func (nopCloser) Close() error { return nil }
