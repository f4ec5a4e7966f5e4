package resend

// Config holds Resend provider configuration.
// Parsed from the environment by internal/config.
type Config struct {
	APIKey string `env:"RESEND_API_KEY"`
}
