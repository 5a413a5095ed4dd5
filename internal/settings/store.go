// Package settings persists workspace preferences as YAML.
package settings

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akabaki/saas-ui/internal/models"
)

// ErrInvalid is wrapped by every rejected update.
var ErrInvalid = errors.New("invalid settings")

// Defaults returns the settings used before anything is saved.
func Defaults() models.Settings {
	return models.Settings{
		OrganizationName:    "DataConvert Pro",
		AdminEmail:          "admin@dataconvert.com",
		Timezone:            "UTC",
		DefaultOutputFormat: models.FormatJSON,
		MaxFileSizeMB:       50,
		EnablePreview:       true,
		AutoDownload:        false,
		EmailNotifications:  true,
		ConversionComplete:  true,
		ErrorAlerts:         true,
		RequireAuth:         true,
		SessionTimeout:      30,
		EnableAuditLog:      true,
	}
}

// ChangeFunc is called with the new settings after every successful write.
type ChangeFunc func(models.Settings)

// Store loads and saves settings in a YAML file. Last write wins.
type Store struct {
	mu        sync.RWMutex
	path      string
	current   models.Settings
	listeners []ChangeFunc
}

// Open reads the settings file at path, falling back to defaults when it is missing.
// An empty path keeps settings in memory only.
func Open(path string) (*Store, error) {
	s := &Store{path: path, current: Defaults()}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	loaded := Defaults()
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if err := Validate(loaded); err != nil {
		fmt.Printf("[Settings] Ignoring %s: %v\n", path, err)
		return s, nil
	}
	s.current = loaded
	return s, nil
}

// OnChange registers fn to be called after each successful Update or Reset.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Get returns the current settings.
func (s *Store) Get() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and saves next.
func (s *Store) Update(next models.Settings) (models.Settings, error) {
	next.DefaultOutputFormat = models.OutputFormat(strings.ToLower(string(next.DefaultOutputFormat)))
	if err := Validate(next); err != nil {
		return models.Settings{}, err
	}
	return s.replace(next)
}

// Reset restores and saves the defaults.
func (s *Store) Reset() (models.Settings, error) {
	return s.replace(Defaults())
}

func (s *Store) replace(next models.Settings) (models.Settings, error) {
	s.mu.Lock()
	if err := s.write(next); err != nil {
		s.mu.Unlock()
		return models.Settings{}, err
	}
	s.current = next
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next, nil
}

func (s *Store) write(v models.Settings) error {
	if s.path == "" {
		return nil
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	header := []byte("# DataConvert settings\n")
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(header, out...), 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// Validate checks the fields that other components depend on.
func Validate(v models.Settings) error {
	var problems []string

	if strings.TrimSpace(v.OrganizationName) == "" {
		problems = append(problems, "organizationName is required")
	}
	if _, err := mail.ParseAddress(v.AdminEmail); err != nil {
		problems = append(problems, "adminEmail must be an email address")
	}
	if _, err := time.LoadLocation(v.Timezone); err != nil || v.Timezone == "" {
		problems = append(problems, fmt.Sprintf("unknown timezone %q", v.Timezone))
	}
	if _, err := models.ParseOutputFormat(string(v.DefaultOutputFormat)); err != nil {
		problems = append(problems, "defaultOutputFormat must be json or xml")
	}
	if v.MaxFileSizeMB <= 0 {
		problems = append(problems, "maxFileSize must be positive")
	}
	if v.SessionTimeout <= 0 {
		problems = append(problems, "sessionTimeout must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
