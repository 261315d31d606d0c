package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	essconfig "github.com/xdoubleu/essentia/v2/pkg/config"
	"gopkg.in/yaml.v3"

	"github.com/beekhof/calendar-widget/internal/format"
	"github.com/beekhof/calendar-widget/internal/markup"
)

const (
	// DefaultListen is the address the HTTP server binds to when none is set.
	DefaultListen = "127.0.0.1:8080"
	// DefaultRefresh is the cron schedule on which every widget is reloaded.
	DefaultRefresh = "*/15 * * * *"
	// DefaultTitle is the heading of a widget without a configured title.
	DefaultTitle = "Calendar"
	// DefaultCalendarID is used when a widget lists no calendars, or leaves
	// its first calendar field empty.
	DefaultCalendarID = "developer-calendar@google.com"
	// DefaultMaxResults is the number of events a widget shows by default.
	DefaultMaxResults = 5
	// MaxMaxResults is the largest allowed max_results.
	MaxMaxResults = 50
	// MaxCalendarFields is the number of calendar fields a widget may have.
	// Each field can still hold several comma-separated IDs.
	MaxCalendarFields = 3
	// DefaultSampleRate is the Sentry sample rate used when none is set.
	DefaultSampleRate = 1.0

	defaultWidgetName = "calendar-%d"
	widgetNamePattern = `^[A-Za-z0-9_-]+$`
)

var validWidgetName = regexp.MustCompile(widgetNamePattern)

// Widget represents a single widget instance.
type Widget struct {
	Name        string   `yaml:"name" json:"name"`                                   // Used in URLs and element IDs
	Title       string   `yaml:"title,omitempty" json:"title,omitempty"`             // Heading shown above the agenda (default: "Calendar")
	Calendars   []string `yaml:"calendars" json:"calendars"`                         // Up to 3 fields, each may hold comma-separated calendar IDs
	MaxResults  int      `yaml:"max_results,omitempty" json:"max_results,omitempty"` // 1-50 (default: 5)
	AutoExpand  bool     `yaml:"auto_expand,omitempty" json:"auto_expand,omitempty"`
	TitleFormat string   `yaml:"title_format,omitempty" json:"title_format,omitempty"` // Default: "[STARTTIME - ][TITLE]"
}

// Config holds the configuration for the calendar widget server.
type Config struct {
	APIKey          string         `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	CredentialsFile string         `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"` // Service account JSON, used instead of the API key
	Endpoint        string         `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`                 // Calendar API base URL override
	Listen          string         `yaml:"listen,omitempty" json:"listen,omitempty"`
	Timezone        string         `yaml:"timezone,omitempty" json:"timezone,omitempty"` // IANA name; empty means the local zone
	Refresh         string         `yaml:"refresh,omitempty" json:"refresh,omitempty"`   // Cron schedule for reloading widgets
	Markup          string         `yaml:"markup,omitempty" json:"markup,omitempty"`     // "none" or "markdown"
	Strings         format.Strings `yaml:"strings,omitempty" json:"strings,omitempty"`
	Env             string         `yaml:"env,omitempty" json:"env,omitempty"`                         // Deployment environment reported to Sentry (default: production)
	AllowedOrigins  []string       `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"` // CORS origins allowed to embed the widgets
	SentryDSN       string         `yaml:"sentry_dsn,omitempty" json:"sentry_dsn,omitempty"`           // Empty disables error reporting
	SampleRate      float64        `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"`         // Sentry sample rate in (0, 1] (default: 1)
	Widgets         []Widget       `yaml:"widgets" json:"widgets"` // At least one widget is required

	location *time.Location
}

// Location returns the display time zone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Widget returns the widget called name.
func (c *Config) Widget(name string) (Widget, bool) {
	for _, w := range c.Widgets {
		if w.Name == name {
			return w, true
		}
	}
	return Widget{}, false
}

// LoadConfigFromFile loads configuration from a YAML (or JSON) file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Without a config file a single widget with default settings is served.
// Returns an error if a value is invalid or a config file lists no widgets.
func LoadConfig(configFile string, apiKeyFlag, credentialsFileFlag, listenFlag string) (*Config, error) {
	config := Config{Widgets: []Widget{{}}}

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if apiKey := os.Getenv("GCAL_WIDGET_API_KEY"); apiKey != "" {
		config.APIKey = apiKey
	}
	if credentialsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credentialsFile != "" {
		config.CredentialsFile = credentialsFile
	}
	if listen := os.Getenv("GCAL_WIDGET_LISTEN"); listen != "" {
		config.Listen = listen
	}
	if timezone := os.Getenv("GCAL_WIDGET_TIMEZONE"); timezone != "" {
		config.Timezone = timezone
	}
	if refresh := os.Getenv("GCAL_WIDGET_REFRESH"); refresh != "" {
		config.Refresh = refresh
	}
	if env := os.Getenv("GCAL_WIDGET_ENV"); env != "" {
		config.Env = env
	}
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		config.SentryDSN = dsn
	}
	if sampleRate := os.Getenv("GCAL_WIDGET_SAMPLE_RATE"); sampleRate != "" {
		f, err := strconv.ParseFloat(sampleRate, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GCAL_WIDGET_SAMPLE_RATE value: %w", err)
		}
		config.SampleRate = f
	}
	if maxResults := os.Getenv("GCAL_WIDGET_MAX_RESULTS"); maxResults != "" {
		n, err := strconv.Atoi(maxResults)
		if err != nil {
			return nil, fmt.Errorf("invalid GCAL_WIDGET_MAX_RESULTS value: %w", err)
		}
		for i := range config.Widgets {
			config.Widgets[i].MaxResults = n
		}
	}

	// Step 3: Override with command-line flags (highest priority)
	if apiKeyFlag != "" {
		config.APIKey = apiKeyFlag
	}
	if credentialsFileFlag != "" {
		config.CredentialsFile = credentialsFileFlag
	}
	if listenFlag != "" {
		config.Listen = listenFlag
	}

	// Step 4: Apply defaults and validate
	if err := config.normalize(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) normalize() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Refresh == "" {
		c.Refresh = DefaultRefresh
	}
	if _, err := cron.ParseStandard(c.Refresh); err != nil {
		return fmt.Errorf("refresh must be a cron schedule, got '%s': %w", c.Refresh, err)
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("timezone must be an IANA time zone name, got '%s': %w", c.Timezone, err)
		}
		c.location = loc
	}
	if c.Env == "" {
		c.Env = essconfig.ProdEnv
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %v", c.SampleRate)
	}
	if _, err := markup.New(c.Markup); err != nil {
		return fmt.Errorf("markup: %w", err)
	}
	c.Strings = c.Strings.WithDefaults()

	// Validate that widgets array is provided
	if len(c.Widgets) == 0 {
		return fmt.Errorf("widgets array must be provided in config file. At least one widget is required")
	}

	seen := make(map[string]bool, len(c.Widgets))
	for i := range c.Widgets {
		w := &c.Widgets[i]

		// Set default name if not provided
		if w.Name == "" {
			w.Name = fmt.Sprintf(defaultWidgetName, i+1)
		}
		if !validWidgetName.MatchString(w.Name) {
			return fmt.Errorf("widgets[%d].name may only contain letters, digits, '-' and '_', got '%s'", i, w.Name)
		}
		if seen[w.Name] {
			return fmt.Errorf("widgets[%d].name '%s' is used by more than one widget", i, w.Name)
		}
		seen[w.Name] = true

		if len(w.Calendars) > MaxCalendarFields {
			return fmt.Errorf("widgets[%d] (name: %s): at most %d calendar fields are allowed, got %d (use commas to list more IDs in one field)", i, w.Name, MaxCalendarFields, len(w.Calendars))
		}
		if len(w.Calendars) == 0 {
			w.Calendars = []string{DefaultCalendarID}
		} else if w.Calendars[0] == "" {
			w.Calendars[0] = DefaultCalendarID
		}

		if w.MaxResults == 0 {
			w.MaxResults = DefaultMaxResults
		}
		if w.MaxResults < 1 || w.MaxResults > MaxMaxResults {
			return fmt.Errorf("widgets[%d].max_results must be between 1 and %d, got %d", i, MaxMaxResults, w.MaxResults)
		}

		if w.Title == "" {
			w.Title = DefaultTitle
		}
		if w.TitleFormat == "" {
			w.TitleFormat = format.DefaultTitleFormat
		}
	}

	return nil
}
