package config

import "slices"

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log: credentials are
// masked and slices are cloned so the copy shares no state with cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	for _, s := range []*string{
		&out.Server.APIKey,
		&out.Bridge.APIKey,
		&out.Signer.Secret,
		&out.Signer.PrivateKey,
		&out.Signer.KeyPassword,
		&out.Postgres.DSN,
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}

	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Compliance.AllowedCountries = slices.Clone(cfg.Compliance.AllowedCountries)
	out.Compliance.Denylist = slices.Clone(cfg.Compliance.Denylist)
	out.Compliance.Allowlist = slices.Clone(cfg.Compliance.Allowlist)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	return out
}
