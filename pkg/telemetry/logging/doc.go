// Package logging builds the structured slog logger used across agentgov.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//
//	logger.Info("webhook configured",
//	    "url", url,
//	    "token", token, // masked
//	)
//
//	ctx = logging.WithCorrelationID(ctx, decisionID)
//	logger.InfoContext(ctx, "action evaluated") // includes correlation_id
//
// Components tag their logger with a component name:
//
//	logger = logger.With("component", "audit.recorder")
//
// # PII Redaction
//
// When RedactPII is enabled, values under sensitive keys (password, token,
// secret, api_key, ...) are masked and string values are scrubbed of API
// keys, bearer tokens, emails and card numbers.
package logging
