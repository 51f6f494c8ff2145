package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Document is a config file as read from disk, before validation.
type Document struct {
	Global  map[string]interface{}
	Targets map[string]interface{}
	Hooks   models.Hooks
}

// rawDocument keeps the validated sections exactly as written. viper folds
// map keys to lower case, which would hide invalid ids and keys.
type rawDocument struct {
	Global  interface{} `yaml:"global"`
	Targets interface{} `yaml:"backup_targets"`
}

// envReference matches a value that is entirely a ${VAR} reference.
var envReference = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads a config document from a file path.
func (p *Parser) LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.load(data)
}

// LoadReader loads a config document from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*Document, error) {
	return p.load([]byte(content))
}

func (p *Parser) load(data []byte) (*Document, error) {
	if err := p.v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse(raw)
}

func (p *Parser) parse(raw rawDocument) (*Document, error) {
	doc := &Document{}

	global, err := section("global", raw.Global)
	if err != nil {
		return nil, err
	}
	if pw, ok := global["encryption_password"].(string); ok {
		global["encryption_password"] = p.expandEnv(pw)
	}
	doc.Global = global

	targets, err := section("backup_targets", raw.Targets)
	if err != nil {
		return nil, err
	}
	doc.Targets = targets

	hooks, err := p.parseHooks()
	if err != nil {
		return nil, err
	}
	doc.Hooks = hooks

	return doc, nil
}

func section(name string, node interface{}) (map[string]interface{}, error) {
	if node == nil {
		return map[string]interface{}{}, nil
	}
	record, err := asRecord(node)
	if err != nil {
		return nil, fmt.Errorf("section %s: %w", name, err)
	}
	return record, nil
}

func (p *Parser) parseHooks() (models.Hooks, error) {
	var hooks models.Hooks

	if p.v.IsSet("hooks.wol") { //nolint:nestif // config parsing with defaults
		hooks.WOL = &models.WOLConfig{
			MACAddress:    p.v.GetString("hooks.wol.mac_address"),
			BroadcastIP:   p.v.GetString("hooks.wol.broadcast_ip"),
			WaitPath:      p.expandEnv(p.v.GetString("hooks.wol.wait_path")),
			Timeout:       p.v.GetDuration("hooks.wol.timeout"),
			PollInterval:  p.v.GetDuration("hooks.wol.poll_interval"),
			StabilizeWait: p.v.GetDuration("hooks.wol.stabilize_wait"),
		}

		if hooks.WOL.MACAddress == "" {
			return hooks, fmt.Errorf("hooks.wol.mac_address is required when wol is configured")
		}
		if hooks.WOL.BroadcastIP == "" {
			hooks.WOL.BroadcastIP = "255.255.255.255"
		}
		if hooks.WOL.Timeout == 0 {
			hooks.WOL.Timeout = 5 * time.Minute
		}
		if hooks.WOL.PollInterval == 0 {
			hooks.WOL.PollInterval = 10 * time.Second
		}
		if hooks.WOL.StabilizeWait == 0 {
			hooks.WOL.StabilizeWait = 10 * time.Second
		}
	}

	if p.v.IsSet("hooks.telegram") {
		hooks.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("hooks.telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("hooks.telegram.chat_id")),
		}

		if hooks.Telegram.BotToken == "" {
			return hooks, fmt.Errorf("hooks.telegram.bot_token is required when telegram is configured")
		}
		if hooks.Telegram.ChatID == "" {
			return hooks, fmt.Errorf("hooks.telegram.chat_id is required when telegram is configured")
		}
	}

	return hooks, nil
}

// expandEnv replaces a value of the form ${VAR} with the variable's value.
// Anything else, including a $ inside a password, is kept verbatim, as is a
// reference to an unset variable.
func (p *Parser) expandEnv(s string) string {
	m := envReference.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	if val, ok := os.LookupEnv(m[1]); ok {
		return val
	}
	return s
}
