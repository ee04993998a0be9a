package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Delta
	out.Delta = cfg.Delta
	redact(&out.Delta.ApiKey)
	redact(&out.Delta.ApiSecret)
	redact(&out.Delta.SecretPassword)

	// Telegram
	out.Telegram = cfg.Telegram
	redact(&out.Telegram.Token)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.DiscordWebhookURL)

	// Server
	out.Server = cfg.Server
	redact(&out.Server.ApiKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Kafka.Brokers != nil {
		out.Kafka.Brokers = make([]string, len(cfg.Kafka.Brokers))
		copy(out.Kafka.Brokers, cfg.Kafka.Brokers)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Delta.SymbolMap != nil {
		out.Delta.SymbolMap = make(map[string]string, len(cfg.Delta.SymbolMap))
		for k, v := range cfg.Delta.SymbolMap {
			out.Delta.SymbolMap[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
