package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use it whenever the active configuration is
// logged or printed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Photon.APIKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy reference types so the redacted value shares nothing mutable.
	out.Notify.Events = cloneSlice(cfg.Notify.Events)
	out.Server.CORSOrigins = cloneSlice(cfg.Server.CORSOrigins)
	out.Markets.Watch = cloneSlice(cfg.Markets.Watch)
	if cfg.Oracle.Feeds != nil {
		out.Oracle.Feeds = make(map[string]string, len(cfg.Oracle.Feeds))
		for k, v := range cfg.Oracle.Feeds {
			out.Oracle.Feeds[k] = v
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

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
