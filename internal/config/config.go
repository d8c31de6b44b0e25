// Package config provides configuration management for the live camera service
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JayjayR89/ai-live-cam/internal/detection"
)

// Config represents the main configuration
type Config struct {
	Version       string              `yaml:"version"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Model         ModelConfig         `yaml:"model"`
	Go2RTC        Go2RTCConfig        `yaml:"go2rtc"`
	Cameras       []CameraConfig      `yaml:"cameras"`
	Detection     DetectionConfig     `yaml:"detection"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Events        EventsConfig        `yaml:"events"`
	PWA           PWAConfig           `yaml:"pwa"`

	// Internal fields
	mu       sync.RWMutex      `yaml:"-"`
	path     string            `yaml:"-"`
	watchers []func(*Config)   `yaml:"-"`
	watcher  *fsnotify.Watcher `yaml:"-"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// ModelConfig holds the model server settings
type ModelConfig struct {
	Address            string              `yaml:"address"`
	Base               string              `yaml:"base"` // mobilenet_v2, lite_mobilenet_v2, mobilenet_v1
	TimeoutSeconds     int                 `yaml:"timeout_seconds"`
	LoadTimeoutSeconds int                 `yaml:"load_timeout_seconds"`
	Embedded           EmbeddedModelConfig `yaml:"embedded"`
}

// EmbeddedModelConfig configures the in-process model server
type EmbeddedModelConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Port        int                 `yaml:"port"`
	Predictions []PredictionFixture `yaml:"predictions,omitempty"`
}

// PredictionFixture is a canned prediction returned by the embedded server
type PredictionFixture struct {
	BBox  []float64 `yaml:"bbox"`
	Class string    `yaml:"class"`
	Score float64   `yaml:"score"`
}

// Go2RTCConfig holds the go2rtc API settings
type Go2RTCConfig struct {
	Address string `yaml:"address"`
}

// CameraConfig holds configuration for a single camera
type CameraConfig struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Stream  string `yaml:"stream,omitempty" json:"stream,omitempty"` // go2rtc stream name, defaults to the id
	Facing  string `yaml:"facing,omitempty" json:"facing,omitempty"` // user or environment
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// StreamName returns the go2rtc stream of the camera
func (c CameraConfig) StreamName() string {
	if c.Stream != "" {
		return c.Stream
	}
	return detection.StreamName(c.ID)
}

// DetectionConfig holds detection loop settings
type DetectionConfig struct {
	IntervalMS int                `yaml:"interval_ms"`
	AutoStart  bool               `yaml:"auto_start"`
	Settings   detection.Settings `yaml:"settings"`
}

// Interval returns the delay between loop ticks
func (d DetectionConfig) Interval() time.Duration {
	return time.Duration(d.IntervalMS) * time.Millisecond
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Enabled                  bool   `yaml:"enabled"`
	Origin                   string `yaml:"origin"`
	ObjectCooldownSeconds    int    `yaml:"object_cooldown_seconds"`
	PermissionTimeoutSeconds int    `yaml:"permission_timeout_seconds"`
	InstallPrompt            bool   `yaml:"install_prompt"`
}

// EventsConfig holds embedded event bus settings
type EventsConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PWAConfig holds the web app manifest fields
type PWAConfig struct {
	Name            string `yaml:"name"`
	ShortName       string `yaml:"short_name"`
	Description     string `yaml:"description"`
	ThemeColor      string `yaml:"theme_color"`
	BackgroundColor string `yaml:"background_color"`
	Display         string `yaml:"display"`
	StartURL        string `yaml:"start_url"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.Detection.Settings = detection.DefaultSettings()
	cfg.Notifications.Enabled = true
	cfg.setDefaults()
	return cfg
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Config{
		Detection:     DetectionConfig{Settings: detection.DefaultSettings()},
		Notifications: NotificationsConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.path = path
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to the defaults
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.path = path
		return cfg, nil
	}
	return Load(path)
}

// LoadEnvFiles loads .env files into the process environment. Missing files
// are ignored; variables already set win.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// FindConfigFile looks for the config file in the usual locations
func FindConfigFile() string {
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	locations := []string{
		"./config.yaml",
		"./config/config.yaml",
		"/config/config.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return "./config.yaml"
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("MODEL_ADDRESS"); v != "" {
		c.Model.Address = v
	}
	if v := os.Getenv("GO2RTC_ADDRESS"); v != "" {
		c.Go2RTC.Address = v
	}
	if v := os.Getenv("APP_ORIGIN"); v != "" {
		c.Notifications.Origin = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		} else {
			slog.Warn("Ignoring invalid PORT", "value", v)
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.Detection.Settings.Validate(); err != nil {
		return fmt.Errorf("invalid detection settings: %w", err)
	}
	if c.Detection.IntervalMS < 0 {
		return fmt.Errorf("invalid detection interval: %d", c.Detection.IntervalMS)
	}

	seen := make(map[string]bool)
	for _, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("camera without id")
		}
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera id: %s", cam.ID)
		}
		seen[cam.ID] = true
	}

	for i, p := range c.Model.Embedded.Predictions {
		if len(p.BBox) != 4 {
			return fmt.Errorf("embedded prediction %d: bbox needs 4 values", i)
		}
	}
	return nil
}

// Save saves the configuration to a YAML file
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveUnlocked()
}

// saveUnlocked saves without acquiring lock (caller must hold lock)
func (c *Config) saveUnlocked() error {
	if c.path == "" {
		return fmt.Errorf("config path not set")
	}

	// Create a copy for saving (without mutex)
	cfgCopy := &Config{
		Version:       c.Version,
		Server:        c.Server,
		Logging:       c.Logging,
		Model:         c.Model,
		Go2RTC:        c.Go2RTC,
		Cameras:       c.Cameras,
		Detection:     c.Detection,
		Notifications: c.Notifications,
		Events:        c.Events,
		PWA:           c.PWA,
	}

	data, err := yaml.Marshal(cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# AI Live Cam Configuration\n# Auto-generated - manual edits are preserved\n\n"
	data = append([]byte(header), data...)

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}

	// Atomic write
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return os.Rename(tmpPath, c.path)
}

// Watch starts watching for configuration file changes. The directory is
// watched so atomic renames are seen too.
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	path := c.GetPath()
	name := filepath.Clean(path)

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					time.Sleep(100 * time.Millisecond) // Debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watch error", "error", err)
			}
		}
	}()

	c.mu.Lock()
	c.watcher = watcher
	c.mu.Unlock()

	return watcher.Add(filepath.Dir(path))
}

// StopWatching stops the file watcher
func (c *Config) StopWatching() {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
}

// OnChange registers a callback for config changes
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// reload reloads the configuration from disk
func (c *Config) reload() {
	newCfg, err := Load(c.GetPath())
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	// Copy fields individually to avoid copying the mutex
	c.Version = newCfg.Version
	c.Server = newCfg.Server
	c.Logging = newCfg.Logging
	c.Model = newCfg.Model
	c.Go2RTC = newCfg.Go2RTC
	c.Cameras = newCfg.Cameras
	c.Detection = newCfg.Detection
	c.Notifications = newCfg.Notifications
	c.Events = newCfg.Events
	c.PWA = newCfg.PWA
	watchers := c.watchers
	c.mu.Unlock()

	slog.Info("Configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

// GetCamera returns a copy of a camera by ID
func (c *Config) GetCamera(id string) *CameraConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.Cameras {
		if c.Cameras[i].ID == id {
			cam := c.Cameras[i]
			return &cam
		}
	}
	return nil
}

// ListCameras returns a copy of the configured cameras
func (c *Config) ListCameras() []CameraConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]CameraConfig(nil), c.Cameras...)
}

// UpsertCamera adds or updates a camera
func (c *Config) UpsertCamera(cam CameraConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.Cameras {
		if c.Cameras[i].ID == cam.ID {
			c.Cameras[i] = cam
			return c.saveUnlocked()
		}
	}

	c.Cameras = append(c.Cameras, cam)
	return c.saveUnlocked()
}

// RemoveCamera removes a camera by ID
func (c *Config) RemoveCamera(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.Cameras {
		if c.Cameras[i].ID == id {
			c.Cameras = append(c.Cameras[:i], c.Cameras[i+1:]...)
			return c.saveUnlocked()
		}
	}

	return fmt.Errorf("camera not found: %s", id)
}

// DetectionSettings returns the default detection settings
func (c *Config) DetectionSettings() detection.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Detection.Settings
}

// SetDetectionSettings validates and persists new default settings
func (c *Config) SetDetectionSettings(s detection.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Detection.Settings = s
	if c.path == "" {
		return nil
	}
	return c.saveUnlocked()
}

// Snapshot returns a copy of the sections readers commonly need together
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		Version:       c.Version,
		Server:        c.Server,
		Logging:       c.Logging,
		Model:         c.Model,
		Go2RTC:        c.Go2RTC,
		Cameras:       append([]CameraConfig(nil), c.Cameras...),
		Detection:     c.Detection,
		Notifications: c.Notifications,
		Events:        c.Events,
		PWA:           c.PWA,
	}
}

// SetPath sets the path for the config file (used for saving)
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// GetPath returns the current config file path
func (c *Config) GetPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// EmbeddedPredictions converts the fixtures for the embedded server
func (m ModelConfig) EmbeddedPredictions() []detection.Prediction {
	out := make([]detection.Prediction, 0, len(m.Embedded.Predictions))
	for _, p := range m.Embedded.Predictions {
		if len(p.BBox) != 4 {
			continue
		}
		out = append(out, detection.Prediction{
			BBox:  [4]float64{p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3]},
			Class: p.Class,
			Score: p.Score,
		})
	}
	return out
}

// setDefaults sets default values for unset fields
func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Model.Base == "" {
		c.Model.Base = "mobilenet_v2"
	}
	if c.Model.TimeoutSeconds == 0 {
		c.Model.TimeoutSeconds = 30
	}
	if c.Model.LoadTimeoutSeconds == 0 {
		c.Model.LoadTimeoutSeconds = 120
	}
	if c.Model.Address == "" && !c.Model.Embedded.Enabled {
		c.Model.Address = "localhost:5100"
	}
	if c.Go2RTC.Address == "" {
		c.Go2RTC.Address = "http://localhost:1984"
	}
	for i := range c.Cameras {
		if c.Cameras[i].Name == "" {
			c.Cameras[i].Name = c.Cameras[i].ID
		}
	}
	if c.Detection.IntervalMS == 0 {
		c.Detection.IntervalMS = int(detection.DefaultInterval / time.Millisecond)
	}
	if c.Notifications.ObjectCooldownSeconds == 0 {
		c.Notifications.ObjectCooldownSeconds = 30
	}
	if c.Notifications.PermissionTimeoutSeconds == 0 {
		c.Notifications.PermissionTimeoutSeconds = 30
	}
	if c.Notifications.Origin == "" {
		c.Notifications.Origin = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Events.Host == "" {
		c.Events.Host = "127.0.0.1"
	}
	if c.Events.Port == 0 {
		c.Events.Port = 12001
	}
	if c.PWA.Name == "" {
		c.PWA.Name = "AI Live Cam - Real-time Object Detection"
	}
	if c.PWA.ShortName == "" {
		c.PWA.ShortName = "AI Live Cam"
	}
	if c.PWA.Description == "" {
		c.PWA.Description = "Real-time camera AI with object detection"
	}
	if c.PWA.ThemeColor == "" {
		c.PWA.ThemeColor = "#3B82F6"
	}
	if c.PWA.BackgroundColor == "" {
		c.PWA.BackgroundColor = "#1F2937"
	}
	if c.PWA.Display == "" {
		c.PWA.Display = "standalone"
	}
	if c.PWA.StartURL == "" {
		c.PWA.StartURL = "/"
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}
