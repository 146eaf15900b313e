// Package gwconfig loads and validates message_gateway.config.json,
// resolving per-channel endpoints and secrets per spec.md §4.1.
package gwconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
)

const (
	defaultConfigFile  = "message_gateway.config.json"
	defaultInboundPath = "/v1/message-gateway/inbound"
)

// rawConfig mirrors the on-disk JSON document before validation.
type rawConfig struct {
	Gateway  *rawGateway   `json:"gateway"`
	Channels []rawChannel  `json:"channels"`
}

type rawGateway struct {
	Enabled     *bool    `json:"enabled"`
	InboundPath string   `json:"inboundPath"`
	Auth        *rawAuth `json:"auth"`
}

type rawAuth struct {
	BearerTokenEnv string `json:"bearerTokenEnv"`
	BearerToken    string `json:"bearerToken"`
}

type rawChannel struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Enabled         *bool           `json:"enabled"`
	ChannelEndpoint *rawEndpoint    `json:"channelEndpoint"`
	Settings        json.RawMessage `json:"settings"`
	SettingsFile    string          `json:"settingsFile"`
}

type rawEndpoint struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	HealthPath       string `json:"healthPath"`
	InvokePath       string `json:"invokePath"`
	StartupTimeoutMs int    `json:"startupTimeoutMs"`
}

// ValidationError reports the field path at which resolution failed.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("message_gateway.config.json: %s: %s", e.Path, e.Reason)
}

// Load reads the config file at path, or defaultConfigFile if path is
// empty. A missing file yields a disabled, channel-less config (spec.md
// §4.1) rather than an error.
func Load(path string) (gwtypes.GatewayConfig, error) {
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return gwtypes.GatewayConfig{Enabled: false, InboundPath: defaultInboundPath}, nil
		}
		return gwtypes.GatewayConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return resolve(data, filepath.Dir(path))
}

// Resolve validates and resolves raw config JSON bytes into a
// gwtypes.GatewayConfig, failing with a precise field path on the first
// field-level violation (per spec.md §4.1); shape errors found by the JSON
// Schema pre-check are all reported together in one error. Relative channels[].settingsFile paths are
// resolved against the current working directory; use Load to resolve them
// against the config file's own directory instead.
func Resolve(data []byte) (gwtypes.GatewayConfig, error) {
	return resolve(data, "")
}

func resolve(data []byte, baseDir string) (gwtypes.GatewayConfig, error) {
	if err := validateShape(data); err != nil {
		return gwtypes.GatewayConfig{}, err
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return gwtypes.GatewayConfig{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	cfg := gwtypes.GatewayConfig{
		Enabled:     true,
		InboundPath: defaultInboundPath,
	}

	if raw.Gateway != nil {
		if raw.Gateway.Enabled != nil {
			cfg.Enabled = *raw.Gateway.Enabled
		}
		if raw.Gateway.InboundPath != "" {
			cfg.InboundPath = raw.Gateway.InboundPath
		}
	}
	if cfg.InboundPath == "" || cfg.InboundPath[0] != '/' {
		return gwtypes.GatewayConfig{}, &ValidationError{Path: "gateway.inboundPath", Reason: "must start with /"}
	}

	if cfg.Enabled {
		ref := SecretRef{Required: true}
		if raw.Gateway != nil && raw.Gateway.Auth != nil {
			ref.EnvName = raw.Gateway.Auth.BearerTokenEnv
			ref.InlineValue = raw.Gateway.Auth.BearerToken
		}
		token, err := ResolveSecret(ref, "gateway.auth.bearerToken")
		if err != nil {
			return gwtypes.GatewayConfig{}, &ValidationError{Path: "gateway.auth", Reason: err.Error()}
		}
		cfg.Auth.BearerToken = token
	}

	seen := make(map[string]bool, len(raw.Channels))
	for i, rc := range raw.Channels {
		desc, err := resolveChannel(i, rc, baseDir)
		if err != nil {
			return gwtypes.GatewayConfig{}, err
		}
		if seen[desc.ID] {
			return gwtypes.GatewayConfig{}, &ValidationError{
				Path:   fmt.Sprintf("channels[%d].id", i),
				Reason: fmt.Sprintf("duplicate channel id %q", desc.ID),
			}
		}
		seen[desc.ID] = true
		cfg.Channels = append(cfg.Channels, desc)
	}

	return cfg, nil
}

func resolveChannel(i int, rc rawChannel, baseDir string) (gwtypes.ChannelDescriptor, error) {
	path := fmt.Sprintf("channels[%d]", i)

	if rc.SettingsFile != "" {
		if len(rc.Settings) > 0 {
			return gwtypes.ChannelDescriptor{}, &ValidationError{Path: path + ".settingsFile", Reason: "settings and settingsFile are mutually exclusive"}
		}
		settingsPath := rc.SettingsFile
		if baseDir != "" && !filepath.IsAbs(settingsPath) {
			settingsPath = filepath.Join(baseDir, settingsPath)
		}
		loaded, err := LoadYAMLSettings(settingsPath)
		if err != nil {
			return gwtypes.ChannelDescriptor{}, &ValidationError{Path: path + ".settingsFile", Reason: err.Error()}
		}
		rc.Settings = loaded
	}

	if !NonEmpty(rc.ID) {
		return gwtypes.ChannelDescriptor{}, &ValidationError{Path: path + ".id", Reason: "must be non-empty"}
	}

	var chType gwtypes.ChannelType
	switch rc.Type {
	case string(gwtypes.ChannelTypeTelegram):
		chType = gwtypes.ChannelTypeTelegram
	case string(gwtypes.ChannelTypeHTTP):
		chType = gwtypes.ChannelTypeHTTP
	default:
		return gwtypes.ChannelDescriptor{}, &ValidationError{Path: path + ".type", Reason: fmt.Sprintf("unknown channel type %q", rc.Type)}
	}

	enabled := true
	if rc.Enabled != nil {
		enabled = *rc.Enabled
	}

	ep := gwtypes.ChannelEndpoint{
		Host:             "127.0.0.1",
		HealthPath:       "/healthz",
		InvokePath:       "/rpc",
		StartupTimeoutMs: 30000,
	}
	if rc.ChannelEndpoint != nil {
		if rc.ChannelEndpoint.Host != "" {
			ep.Host = rc.ChannelEndpoint.Host
		}
		ep.Port = rc.ChannelEndpoint.Port
		if rc.ChannelEndpoint.HealthPath != "" {
			ep.HealthPath = rc.ChannelEndpoint.HealthPath
		}
		if rc.ChannelEndpoint.InvokePath != "" {
			ep.InvokePath = rc.ChannelEndpoint.InvokePath
		}
		if rc.ChannelEndpoint.StartupTimeoutMs != 0 {
			ep.StartupTimeoutMs = rc.ChannelEndpoint.StartupTimeoutMs
		}
	}

	if ep.Port < 1 || ep.Port > 65535 {
		return gwtypes.ChannelDescriptor{}, &ValidationError{Path: path + ".channelEndpoint.port", Reason: "must be in [1,65535]"}
	}
	if ep.HealthPath == "" || ep.HealthPath[0] != '/' {
		return gwtypes.ChannelDescriptor{}, &ValidationError{Path: path + ".channelEndpoint.healthPath", Reason: "must start with /"}
	}
	if ep.InvokePath == "" || ep.InvokePath[0] != '/' {
		return gwtypes.ChannelDescriptor{}, &ValidationError{Path: path + ".channelEndpoint.invokePath", Reason: "must start with /"}
	}
	if ep.StartupTimeoutMs < 1000 || ep.StartupTimeoutMs > 120000 {
		return gwtypes.ChannelDescriptor{}, &ValidationError{Path: path + ".channelEndpoint.startupTimeoutMs", Reason: "must be in [1000,120000]"}
	}

	if len(rc.Settings) > 0 {
		var asObject map[string]json.RawMessage
		if err := json.Unmarshal(rc.Settings, &asObject); err != nil {
			return gwtypes.ChannelDescriptor{}, &ValidationError{Path: path + ".settings", Reason: "must be an object"}
		}
	}

	return gwtypes.ChannelDescriptor{
		ID:       rc.ID,
		Type:     chType,
		Enabled:  enabled,
		Endpoint: ep,
		Settings: rc.Settings,
	}, nil
}
