package config

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"gopkg.in/yaml.v3"

	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

const (
	DefaultPerPage  = 100
	DefaultUsername = "mock.agent@example.com"
)

var (
	ErrParseConfig   = errors.New("failed to parse yaml configuration")
	ErrLoadValue     = errors.New("failed to load value from source")
	ErrHostRequired  = errors.New("host is required unless mock is enabled")
	ErrInvalidPaging = errors.New("perPage must be between 1 and 100")
)

// Params tells the identity-management plugin which attribute of a helpdesk
// group or user is reported as its name.
type Params struct {
	GroupAttribute commoncfg.SourceRef `yaml:"groupAttribute"`
	UserAttribute  commoncfg.SourceRef `yaml:"userAttribute"`
}

type Config struct {
	Host commoncfg.SourceRef `yaml:"host"`
	Auth commoncfg.SecretRef `yaml:"auth"`

	// Mock selects the in-process strategy instead of HTTP.
	Mock bool `yaml:"mock"`
	// Username is the email of the authenticated agent. The mock seeds its
	// current user from it.
	Username string `yaml:"username"`
	PerPage  int    `yaml:"perPage"`

	Params Params `yaml:"params"`
}

// Load parses a yaml document and applies defaults.
func Load(data []byte) (*Config, error) {
	cfg := &Config{}

	err := yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, errs.Wrap(ErrParseConfig, err)
	}

	cfg.applyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PerPage == 0 {
		c.PerPage = DefaultPerPage
	}

	if c.Username == "" {
		c.Username = DefaultUsername
	}
}

func (c *Config) Validate() error {
	if c.PerPage < 1 || c.PerPage > DefaultPerPage {
		return ErrInvalidPaging
	}

	if !c.Mock && !IsSet(c.Host) {
		return ErrHostRequired
	}

	return nil
}

// ResolveHost returns the API base URL, for example
// https://acme.zendesk.com/api/v2. A mock configuration may leave it empty.
func (c *Config) ResolveHost() (string, error) {
	if !IsSet(c.Host) {
		if c.Mock {
			return "", nil
		}

		return "", ErrHostRequired
	}

	host, err := LoadString(c.Host)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(host, "/"), nil
}

// IsSet reports whether ref points at any source.
func IsSet(ref commoncfg.SourceRef) bool {
	return ref.Source != ""
}

// LoadString loads a string value. Values are expected as JSON strings;
// anything that does not decode as one is taken verbatim.
func LoadString(ref commoncfg.SourceRef) (string, error) {
	raw, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return "", errs.Wrap(ErrLoadValue, err)
	}

	var value string

	err = json.Unmarshal(raw, &value)
	if err != nil {
		return strings.TrimSpace(string(raw)), nil
	}

	return value, nil
}
