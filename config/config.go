// Package config resolves the settings of the agentrun command from flags,
// the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variable of every flag, e.g.
// AGENTRUN_AGENT_TYPE for --agent-type.
const EnvPrefix = "agentrun"

const (
	KeyModelID          = "model-id"
	KeyAgentType        = "agent-type"
	KeyBaseURL          = "base-url"
	KeyAPIKey           = "api-key"
	KeyBackend          = "backend"
	KeyVerbosity        = "verbosity"
	KeyStream           = "stream"
	KeyCodeBlockTags    = "code-block-tags"
	KeyExtractor        = "extractor"
	KeyStore            = "store"
	KeyTranscriptFormat = "transcript-format"
	KeyEnvFile          = "env-file"
	KeyStopPolicy       = "stop-policy"
	KeyLogLevel         = "log-level"
)

const (
	AgentTypeCode        = "code"
	AgentTypeToolCalling = "tool-calling"

	BackendGateway   = "gateway"
	BackendLangchain = "langchain"
)

// legacyEnv lists, per key, the variables read besides the AGENTRUN_ one,
// in order of precedence.
var legacyEnv = map[string][]string{
	KeyModelID: {"MODEL"},
	KeyAPIKey:  {"POE_API_KEY", "API_KEY"},
	KeyBaseURL: {"POE_BASE_URL", "API_BASE_URL"},
}

// Settings are the resolved options of a run.
type Settings struct {
	ModelID          string
	AgentType        string
	APIKey           string
	BaseURL          string
	Backend          string
	Verbosity        int
	Stream           bool
	CodeBlockTags    string
	Extractor        string
	Store            string
	TranscriptFormat string
	StopPolicy       string
	LogLevel         string
}

// LoadDotEnv loads environment variables from path. If the file does not
// exist it is silently ignored so that .env files remain optional.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// NewViper returns a viper instance reading AGENTRUN_* variables and the
// legacy names, with the defaults of every key.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, names := range legacyEnv {
		envs := append([]string{envName(key)}, names...)
		// BindEnv only fails without a key.
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	v.SetDefault(KeyAgentType, AgentTypeCode)
	v.SetDefault(KeyBackend, BackendGateway)
	v.SetDefault(KeyVerbosity, 2)
	v.SetDefault(KeyTranscriptFormat, "text")
	v.SetDefault(KeyEnvFile, ".env")
	v.SetDefault(KeyExtractor, "anchored")
	v.SetDefault(KeyStopPolicy, "never")
	v.SetDefault(KeyLogLevel, "warn")
	return v
}

func envName(key string) string {
	return strings.ToUpper(EnvPrefix + "_" + strings.ReplaceAll(key, "-", "_"))
}

// Load reads and validates the settings. Credentials are checked first so
// that a misconfigured environment fails before any agent work.
func Load(v *viper.Viper) (*Settings, error) {
	s := Read(v)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Read returns the settings without validating them.
func Read(v *viper.Viper) *Settings {
	return &Settings{
		ModelID:          strings.TrimSpace(v.GetString(KeyModelID)),
		AgentType:        strings.ToLower(v.GetString(KeyAgentType)),
		APIKey:           v.GetString(KeyAPIKey),
		BaseURL:          strings.TrimSpace(v.GetString(KeyBaseURL)),
		Backend:          strings.ToLower(v.GetString(KeyBackend)),
		Verbosity:        v.GetInt(KeyVerbosity),
		Stream:           v.GetBool(KeyStream),
		CodeBlockTags:    v.GetString(KeyCodeBlockTags),
		Extractor:        v.GetString(KeyExtractor),
		Store:            v.GetString(KeyStore),
		TranscriptFormat: v.GetString(KeyTranscriptFormat),
		StopPolicy:       v.GetString(KeyStopPolicy),
		LogLevel:         v.GetString(KeyLogLevel),
	}
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if s.APIKey == "" {
		return errors.New("Could not find POE_API_KEY variable in the environment")
	}
	if s.BaseURL == "" {
		return errors.New("Could not find POE_BASE_URL variable in the environment")
	}
	if s.ModelID == "" {
		return errors.New("model id is required: pass --model-id or set MODEL")
	}
	switch s.AgentType {
	case AgentTypeCode, AgentTypeToolCalling:
	default:
		return fmt.Errorf("unknown agent type %q, expected %q or %q", s.AgentType, AgentTypeCode, AgentTypeToolCalling)
	}
	switch s.Backend {
	case BackendGateway, BackendLangchain:
	default:
		return fmt.Errorf("unknown backend %q, expected %q or %q", s.Backend, BackendGateway, BackendLangchain)
	}
	if s.Verbosity < 0 || s.Verbosity > 2 {
		return fmt.Errorf("verbosity must be between 0 and 2, got %d", s.Verbosity)
	}
	return nil
}

// AgentLabel is the agent type as used in agent names, e.g. "tool_calling".
func (s *Settings) AgentLabel() string {
	return strings.ReplaceAll(s.AgentType, "-", "_")
}
