package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	RuntimeHTTP   = "http"
	RuntimeLambda = "lambda"

	CatalogBuiltin = "builtin"
	CatalogSSM     = "ssm"
)

type Config struct {
	Port    string `validate:"required,numeric"`
	Runtime string `validate:"oneof=http lambda"`

	CompletionAPIKey string
	CompletionModel  string `validate:"required"`
	CompletionURL    string `validate:"required,url"`

	ChatwootURL      string `validate:"omitempty,url"`
	ChatwootToken    string
	ChatwootAuthMode string
	DispatchMode     string `validate:"oneof=inline api both"`

	LogLevel          string `validate:"oneof=debug info warn warning error"`
	LogFormat         string `validate:"oneof=json text console"`
	LogBody           bool
	LogCompletionResp bool

	AllowedInboxIDs    []string `validate:"dive,required"`
	CTAURL             string   `validate:"omitempty,url"`
	PriceCatalogSource string   `validate:"oneof=builtin ssm"`
	// ParamPrefix enables SSM Parameter Store for secrets and the catalog.
	ParamPrefix   string `validate:"required_if=PriceCatalogSource ssm"`
	WebhookSecret string
}

// Load reads the configuration from the environment, seeded from the given
// .env files (".env" when none are named). Missing files are ignored and
// variables already set in the environment win.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds and validates a Config from lookup.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	env := envReader{lookup: lookup}
	cfg := &Config{
		Port:    env.str("PORT", "3000"),
		Runtime: strings.ToLower(env.str("RUNTIME", RuntimeHTTP)),

		CompletionAPIKey: env.str("COMPLETION_API_KEY", env.str("GROQ_API_KEY", "")),
		CompletionModel:  env.str("COMPLETION_MODEL", env.str("GROQ_MODEL", "llama3-70b-8192")),
		CompletionURL:    env.str("COMPLETION_URL", env.str("GROQ_URL", "https://api.groq.com/openai/v1/chat/completions")),

		ChatwootURL:      strings.TrimRight(env.str("CHATWOOT_URL", ""), "/"),
		ChatwootToken:    env.str("CHATWOOT_TOKEN", ""),
		ChatwootAuthMode: strings.ToLower(env.str("CHATWOOT_AUTH_MODE", "query")),
		DispatchMode:     strings.ToLower(env.str("DISPATCH_MODE", "inline")),

		LogLevel:          strings.ToLower(env.str("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(env.str("LOG_FORMAT", "json")),
		LogBody:           env.boolean("LOG_BODY"),
		LogCompletionResp: env.boolean("LOG_COMPLETION_RESP") || env.boolean("LOG_GROQ_RESP"),

		AllowedInboxIDs:    env.list("ALLOWED_INBOX_IDS"),
		CTAURL:             env.str("CTA_URL", ""),
		PriceCatalogSource: strings.ToLower(env.str("PRICE_CATALOG_SOURCE", CatalogBuiltin)),
		ParamPrefix:        strings.TrimRight(env.str("PARAM_PREFIX", ""), "/"),
		WebhookSecret:      env.str("WEBHOOK_SECRET", ""),
	}
	if len(env.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(env.errs...))
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) str(key, def string) string {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return def
	}
	return v
}

func (r *envReader) boolean(key string) bool {
	v := r.str(key, "")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return false
	}
	return b
}

func (r *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
