// Package config loads the JSON configuration document discovered next to
// the executable, with environment overrides for credentials.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

var (
	ErrMissingConfig = errors.New("missing required configuration")
	ErrInvalidConfig = errors.New("invalid configuration value")
)

// FileName is the configuration document discovered next to the executable.
const FileName = "outlooksync.json"

// Config mirrors the JSON document; the key names are part of the on-disk
// contract and stay as-is.
type Config struct {
	ICloudCalDavUrl string `json:"ICloudCalDavUrl"`
	ICloudUser      string `json:"ICloudUser"`
	ICloudPassword  string `json:"ICloudPassword"`
	PrincipalId     string `json:"PrincipalId"`
	WorkCalendarId  string `json:"WorkCalendarId"`

	InitialWaitSeconds  int `json:"InitialWaitSeconds"`
	SyncIntervalMinutes int `json:"SyncIntervalMinutes"`
	SyncDaysIntoFuture  int `json:"SyncDaysIntoFuture"`
	SyncDaysIntoPast    int `json:"SyncDaysIntoPast"`

	RecurrenceExpansionDaysPast   int `json:"RecurrenceExpansionDaysPast"`
	RecurrenceExpansionDaysFuture int `json:"RecurrenceExpansionDaysFuture"`

	SourceId string `json:"SourceId"`
	EventTag string `json:"EventTag"`

	SourceTimeZoneId string `json:"SourceTimeZoneId"`
	TargetTimeZoneId string `json:"TargetTimeZoneId"`

	IncludeSecondReminder *bool  `json:"IncludeSecondReminder"`
	LogLevel              string `json:"LogLevel"`
	LogFile               string `json:"LogFile"`
}

// Load reads the document from the executable's directory. An optional .env
// file is read first so the app-specific password can stay out of the JSON
// document.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional

	path, err := discover()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads and validates one configuration document.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingConfig, err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrInvalidConfig, path, err)
	}
	// Unknown keys are tolerated so an edited or future document never keeps
	// the unattended daemon from starting, but each one gets a warning.
	for _, key := range unknownKeys(data) {
		slog.Warn("ignoring unknown configuration key", "path", path, "key", key)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if missing := cfg.missingRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return cfg, nil
}

// unknownKeys lists top-level document keys that no Config field claims.
func unknownKeys(data []byte) []string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	known := map[string]bool{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			known[name] = true
		}
	}

	var unknown []string
	for key := range raw {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// discover looks for the document next to the executable, then in the
// working directory.
func discover() (string, error) {
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), FileName)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if _, err := os.Stat(FileName); err == nil {
		return FileName, nil
	}
	return "", fmt.Errorf("%w: %s not found next to executable", ErrMissingConfig, FileName)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ICLOUD_USER"); v != "" {
		c.ICloudUser = v
	}
	if v := os.Getenv("ICLOUD_PASSWORD"); v != "" {
		c.ICloudPassword = v
	}
}

func (c *Config) applyDefaults() {
	if c.InitialWaitSeconds <= 0 {
		c.InitialWaitSeconds = 60
	}
	if c.SyncIntervalMinutes <= 0 {
		c.SyncIntervalMinutes = 3
	}
	if c.SyncDaysIntoFuture <= 0 {
		c.SyncDaysIntoFuture = 30
	}
	if c.SyncDaysIntoPast <= 0 {
		c.SyncDaysIntoPast = 30
	}
	if c.RecurrenceExpansionDaysPast <= 0 {
		c.RecurrenceExpansionDaysPast = 30
	}
	if c.RecurrenceExpansionDaysFuture <= 0 {
		c.RecurrenceExpansionDaysFuture = 30
	}
	if c.IncludeSecondReminder == nil {
		t := true
		c.IncludeSecondReminder = &t
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) missingRequired() []string {
	var missing []string
	if c.ICloudCalDavUrl == "" {
		missing = append(missing, "ICloudCalDavUrl")
	}
	if c.ICloudUser == "" {
		missing = append(missing, "ICloudUser")
	}
	if c.ICloudPassword == "" {
		missing = append(missing, "ICloudPassword")
	}
	if c.PrincipalId == "" {
		missing = append(missing, "PrincipalId")
	}
	if c.WorkCalendarId == "" {
		missing = append(missing, "WorkCalendarId")
	}
	return missing
}

// CalendarURL is the destination collection:
// ${ICloudCalDavUrl}/${PrincipalId}/calendars/${WorkCalendarId}/.
func (c *Config) CalendarURL() string {
	return strings.TrimSuffix(c.ICloudCalDavUrl, "/") +
		"/" + c.PrincipalId + "/calendars/" + c.WorkCalendarId + "/"
}

// SecondReminder reports the effective IncludeSecondReminder value.
func (c *Config) SecondReminder() bool {
	return c.IncludeSecondReminder == nil || *c.IncludeSecondReminder
}
