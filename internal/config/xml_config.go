// Package config provides XML-based configuration management for self-hosted deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileName is the config file looked up next to the executable.
const FileName = "DataConvert.exe.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"DataConvert"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Conversion configuration
	Conversion ConversionConfig `xml:"Conversion"`

	// Object storage mirror
	ObjectStorage ObjectStorageConfig `xml:"ObjectStorage"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory        string `xml:"DataDirectory"`
	ArtifactsDirectory   string `xml:"ArtifactsDirectory"`
	HistoryDatabase      string `xml:"HistoryDatabase"`
	OrganizationsDB      string `xml:"OrganizationsDatabase"`
	SettingsFile         string `xml:"SettingsFile"`
	EnablePersistence    bool   `xml:"EnablePersistence"`
	HistoryRetentionDays int    `xml:"HistoryRetentionDays"`
}

// ConversionConfig contains conversion defaults
type ConversionConfig struct {
	DefaultOutputFormat    string `xml:"DefaultOutputFormat"`
	MaxFileSizeMB          int    `xml:"MaxFileSizeMB"`
	AllowedFileTypes       string `xml:"AllowedFileTypes"`
	QuotedPreview          bool   `xml:"QuotedPreview"`
	JobRetentionMinutes    int    `xml:"JobRetentionMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
}

// ObjectStorageConfig configures the optional MinIO artifact mirror
type ObjectStorageConfig struct {
	Enabled   bool   `xml:"Enabled"`
	Endpoint  string `xml:"Endpoint"`
	AccessKey string `xml:"AccessKey"`
	SecretKey string `xml:"SecretKey"`
	Bucket    string `xml:"Bucket"`
	Prefix    string `xml:"Prefix"`
	UseSSL    bool   `xml:"UseSSL"`
	Region    string `xml:"Region"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowArtifactDeletion bool   `xml:"AllowArtifactDeletion"`
	RequireAuth           bool   `xml:"RequireAuthentication"`
	AuthToken             string `xml:"AuthToken"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	NotificationHistory     int    `xml:"NotificationHistory"`
	ProgressIntervalMs      int    `xml:"ProgressIntervalMs"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "200M",
		},
		Storage: StorageConfig{
			DataDirectory:        "./data",
			ArtifactsDirectory:   "./data/artifacts",
			HistoryDatabase:      "./data/history.duckdb",
			OrganizationsDB:      "./data/organizations.db",
			SettingsFile:         "./data/settings.yaml",
			EnablePersistence:    true,
			HistoryRetentionDays: 90,
		},
		Conversion: ConversionConfig{
			DefaultOutputFormat:    "json",
			MaxFileSizeMB:          50,
			AllowedFileTypes:       ".csv,.xls,.xlsx",
			QuotedPreview:          false,
			JobRetentionMinutes:    24 * 60,
			CleanupIntervalMinutes: 15,
		},
		ObjectStorage: ObjectStorageConfig{
			Enabled: false,
			Bucket:  "dataconvert-artifacts",
			Prefix:  "artifacts",
			UseSSL:  true,
		},
		Security: SecurityConfig{
			AllowArtifactDeletion: true,
			RequireAuth:           false,
			AuthToken:             "",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			NotificationHistory:     50,
			ProgressIntervalMs:      500,
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- DataConvert Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves every storage path that still lives under the default data directory
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		old := c.Storage.DataDirectory
		c.Storage.DataDirectory = dataDir
		for _, p := range []*string{
			&c.Storage.ArtifactsDirectory,
			&c.Storage.HistoryDatabase,
			&c.Storage.OrganizationsDB,
			&c.Storage.SettingsFile,
		} {
			if rel, err := filepath.Rel(old, *p); err == nil && !strings.HasPrefix(rel, "..") {
				*p = filepath.Join(dataDir, rel)
			}
		}
	}

	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		c.ObjectStorage.Endpoint = endpoint
		c.ObjectStorage.Enabled = true
	}
	if key := os.Getenv("MINIO_ACCESS_KEY"); key != "" {
		c.ObjectStorage.AccessKey = key
	}
	if secret := os.Getenv("MINIO_SECRET_KEY"); secret != "" {
		c.ObjectStorage.SecretKey = secret
	}
	if bucket := os.Getenv("MINIO_BUCKET"); bucket != "" {
		c.ObjectStorage.Bucket = bucket
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.ArtifactsDirectory,
		&c.Storage.HistoryDatabase,
		&c.Storage.OrganizationsDB,
		&c.Storage.SettingsFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// AllowedExtensions splits AllowedFileTypes into normalized extensions.
func (c *AppConfig) AllowedExtensions() []string {
	var exts []string
	for _, e := range strings.Split(c.Conversion.AllowedFileTypes, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return exts
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.ArtifactsDirectory,
		filepath.Dir(c.Storage.HistoryDatabase),
		filepath.Dir(c.Storage.OrganizationsDB),
		filepath.Dir(c.Storage.SettingsFile),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
