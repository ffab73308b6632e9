package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWorksheet = "BD_Telemedida"
	DefaultHighlight = "FFFF00"
)

// DefaultCarryForward is the set of column ranges duplicated from the row
// above when a new ledger row is inserted.
var DefaultCarryForward = []string{"B:V", "AE", "AG"}

// DB holds the connection settings shared by both telemetry databases.
type DB struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Metersight string `yaml:"metersight"`
	AppOps     string `yaml:"app-ops"`

	// Conninfo string handed to dblink by the app-ops query, e.g.
	// "dbname=bia-bi user=data password=...".
	AppOpsDBLink string `yaml:"app-ops-dblink"`
}

// Sheets holds the Google Sheets worksheet settings.
type Sheets struct {
	SpreadsheetID   string   `yaml:"spreadsheet-id"`
	Worksheet       string   `yaml:"worksheet"`
	Credentials     string   `yaml:"credentials"`      // path to a service account JSON file
	CredentialsJSON string   `yaml:"credentials-json"` // inline service account JSON (overrides Credentials)
	Retries         int      `yaml:"retries"`
	Highlight       string   `yaml:"highlight"`
	CarryForward    []string `yaml:"carry-forward"`
}

// Config is constructed once at process start and passed into the component
// constructors. Core logic never reads the environment.
type Config struct {
	DB       DB     `yaml:"db"`
	Sheets   Sheets `yaml:"sheets"`
	LogLevel string `yaml:"log-level"`
}

func NewConfig() Config {
	return Config{
		DB: DB{
			Username: "data",
			Port:     5432,
		},
		Sheets: Sheets{
			Worksheet:    DefaultWorksheet,
			Retries:      3,
			Highlight:    DefaultHighlight,
			CarryForward: DefaultCarryForward,
		},
		LogLevel: "info",
	}
}

// Load reads the (optional) YAML configuration file and then applies
// environment variable overrides.
func (c *Config) Load(file string) error {
	if strings.TrimSpace(file) != "" {
		bytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("unable to read configuration file (%v)", err)
		}

		if err := yaml.Unmarshal(bytes, c); err != nil {
			return fmt.Errorf("unable to parse configuration file (%v)", err)
		}
	}

	overrides := []struct {
		env string
		set func(string) error
	}{
		{"DB_USERNAME", setString(&c.DB.Username)},
		{"DB_PASSWORD", setString(&c.DB.Password)},
		{"DB_HOST", setString(&c.DB.Host)},
		{"DB_PORT", setInt(&c.DB.Port)},
		{"DB_METERSIGHT", setString(&c.DB.Metersight)},
		{"DB_APP_OPS", setString(&c.DB.AppOps)},
		{"DB_APP_OPS_DBLINK", setString(&c.DB.AppOpsDBLink)},
		{"GOOGLE_SHEETS_ID", setString(&c.Sheets.SpreadsheetID)},
		{"GOOGLE_SHEETS_WORKSHEET_NAME", setString(&c.Sheets.Worksheet)},
		{"GOOGLE_SERVICE_ACCOUNT_JSON", setString(&c.Sheets.CredentialsJSON)},
		{"GOOGLE_SERVICE_ACCOUNT_FILE", setString(&c.Sheets.Credentials)},
		{"LOG_LEVEL", setString(&c.LogLevel)},
	}

	for _, v := range overrides {
		if value, ok := os.LookupEnv(v.env); ok {
			if err := v.set(value); err != nil {
				return fmt.Errorf("invalid value for %s (%v)", v.env, err)
			}
		}
	}

	return c.Validate()
}

// Validate checks that the settings without usable defaults are present.
func (c *Config) Validate() error {
	missing := []string{}

	if strings.TrimSpace(c.DB.Password) == "" {
		missing = append(missing, "db.password")
	}

	if strings.TrimSpace(c.DB.Host) == "" {
		missing = append(missing, "db.host")
	}

	if strings.TrimSpace(c.DB.Metersight) == "" {
		missing = append(missing, "db.metersight")
	}

	if strings.TrimSpace(c.DB.AppOps) == "" {
		missing = append(missing, "db.app-ops")
	}

	if strings.TrimSpace(c.Sheets.SpreadsheetID) == "" {
		missing = append(missing, "sheets.spreadsheet-id")
	}

	if strings.TrimSpace(c.Sheets.Credentials) == "" && strings.TrimSpace(c.Sheets.CredentialsJSON) == "" {
		missing = append(missing, "sheets.credentials")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// MetersightDSN returns the connection URL for the metersight database.
func (c *Config) MetersightDSN() string {
	return c.dsn(c.DB.Metersight)
}

// AppOpsDSN returns the connection URL for the app-ops database.
func (c *Config) AppOpsDSN() string {
	return c.dsn(c.DB.AppOps)
}

func (c *Config) dsn(database string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DB.Username, c.DB.Password),
		Host:   fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:   "/" + database,
	}

	return u.String()
}

func setString(p *string) func(string) error {
	return func(v string) error {
		*p = v
		return nil
	}
}

func setInt(p *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}

		*p = i
		return nil
	}
}
