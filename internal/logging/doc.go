// Package logging provides structured logging for ledgerd on top of Zap.
//
// The logger writes JSON (or console) output to stdout and can additionally
// bridge records into an OpenTelemetry LoggerProvider. Every record passes a
// redacting encoder so API keys, bearer tokens and similar values never reach
// the sink, and channel identities (phone numbers) can be masked with
// MaskedIdentity.
//
// Correlation data travels on the context:
//
//	ctx = logging.WithCorrelation(ctx, logging.Correlation{
//	    TenantID:       "t1",
//	    UserID:         "u1",
//	    ConversationID: "c1",
//	})
//	logger.Info(ctx, "message processed", zap.Duration("duration", d))
//
// ContextFields extracts the same data (plus trace/span ids) for code that
// holds a plain *zap.Logger.
package logging
