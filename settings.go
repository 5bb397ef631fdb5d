package connector

import (
	"errors"
	"fmt"
	"github.com/go-viper/mapstructure/v2"
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultPort           = 8086
	DefaultConnectTimeout = 10 * time.Second
	DefaultBatchSize      = 5000
	DefaultBatchTimeout   = 5 * time.Minute

	// Precision of the timestamps written by FormatLine. It is sent as the precision
	// query parameter of the write URL.
	Precision = "ms"
)

// Settings holds the values decoded from the agent configuration. A Settings value is
// copied into the connector by Configure and is not changed afterwards.
type Settings struct {
	Host           string
	Port           int
	Database       string
	Tags           string
	NamePrefix     string
	ConnectTimeout time.Duration
	ExceptionNames []string
	BatchSize      int
	BatchTimeout   time.Duration
}

// rawSettings mirrors the keys used in the agent configuration.
type rawSettings struct {
	Host                   string        `mapstructure:"host"`
	Port                   int           `mapstructure:"port"`
	Database               string        `mapstructure:"database"`
	Tags                   string        `mapstructure:"tags"`
	NamePrefix             string        `mapstructure:"namePrefix"`
	ConnectTimeoutInMillis int           `mapstructure:"socket.connectTimeoutInMillis"`
	ExceptionNames         []string      `mapstructure:"exceptionName"`
	BatchSize              int           `mapstructure:"batch.size"`
	BatchTimeout           time.Duration `mapstructure:"batch.timeout"`
}

// DefaultSettings returns the settings used for keys that are absent from the
// agent configuration.
func DefaultSettings() Settings {
	return Settings{
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		BatchSize:      DefaultBatchSize,
		BatchTimeout:   DefaultBatchTimeout,
	}
}

// DecodeSettings converts the key/value settings of the agent configuration. Values may be
// given as strings, so "port": "8086" is accepted, and exceptionName may be a single string
// or a list of strings.
func DecodeSettings(raw map[string]interface{}) (Settings, error) {
	defaults := DefaultSettings()
	decoded := rawSettings{
		Port:                   defaults.Port,
		ConnectTimeoutInMillis: int(defaults.ConnectTimeout / time.Millisecond),
		BatchSize:              defaults.BatchSize,
		BatchTimeout:           defaults.BatchTimeout,
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      false,
		Result:           &decoded,
	})
	if err != nil {
		return Settings{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}

	s := Settings{
		Host:           decoded.Host,
		Port:           decoded.Port,
		Database:       decoded.Database,
		Tags:           decoded.Tags,
		NamePrefix:     decoded.NamePrefix,
		ConnectTimeout: time.Duration(decoded.ConnectTimeoutInMillis) * time.Millisecond,
		ExceptionNames: decoded.ExceptionNames,
		BatchSize:      decoded.BatchSize,
		BatchTimeout:   decoded.BatchTimeout,
	}
	return s, s.Validate()
}

func (s Settings) Validate() error {
	if s.Host == "" {
		return errors.New("host is required")
	}
	if s.Database == "" {
		return errors.New("database is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	if s.ConnectTimeout < 0 {
		return errors.New("socket.connectTimeoutInMillis must not be negative")
	}
	if s.BatchSize < 0 {
		return errors.New("batch.size must not be negative")
	}
	if s.BatchTimeout < 0 {
		return errors.New("batch.timeout must not be negative")
	}
	return nil
}

// withDefaults fills the zero values of a hand-built Settings.
func (s Settings) withDefaults() Settings {
	defaults := DefaultSettings()
	if s.Port == 0 {
		s.Port = defaults.Port
	}
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = defaults.ConnectTimeout
	}
	if s.BatchSize == 0 {
		s.BatchSize = defaults.BatchSize
	}
	if s.BatchTimeout == 0 {
		s.BatchTimeout = defaults.BatchTimeout
	}
	s.ExceptionNames = append([]string(nil), s.ExceptionNames...)
	return s
}

func (s Settings) String() string {
	return fmt.Sprintf("Settings{%s, database=%s, namePrefix=%q, connectTimeout=%s}",
		net.JoinHostPort(s.Host, strconv.Itoa(s.Port)), s.Database, s.NamePrefix, s.ConnectTimeout)
}

func (s Settings) endpointURL(path string) (*url.URL, error) {
	return url.Parse("http://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + path)
}

func composeWriteURL(s Settings) (string, error) {
	writeURL, err := s.endpointURL("/write")
	if err != nil {
		return "", err
	}
	queryValues := writeURL.Query()
	queryValues.Set("db", s.Database)
	queryValues.Set("precision", Precision)
	writeURL.RawQuery = queryValues.Encode()

	return writeURL.String(), nil
}

func composeQueryURL(s Settings, q string) (string, error) {
	queryURL, err := s.endpointURL("/query")
	if err != nil {
		return "", err
	}
	queryValues := queryURL.Query()
	queryValues.Set("q", q)
	queryURL.RawQuery = queryValues.Encode()

	return queryURL.String(), nil
}
