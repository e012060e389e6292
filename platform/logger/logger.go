// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ActorIDKey is the context key for the acting user ID
	ActorIDKey contextKey = "actor_id"
	// InterventionIDKey is the context key for the intervention being worked on
	InterventionIDKey contextKey = "intervention_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, actor_id, and intervention_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if actorID, ok := ctx.Value(ActorIDKey).(string); ok && actorID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("actor_id", actorID))}
	}

	if interventionID, ok := ctx.Value(InterventionIDKey).(string); ok && interventionID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("intervention_id", interventionID))}
	}

	return newLogger
}

// WithIntervention returns a logger scoped to one intervention.
func (l *Logger) WithIntervention(interventionID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("intervention_id", interventionID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DispatchEvent logs one step of the dispatch offer protocol.
func (l *Logger) DispatchEvent(event, interventionID, technicianID string) {
	l.Info("dispatch_event",
		slog.String("event", event),
		slog.String("intervention_id", interventionID),
		slog.String("technician_id", technicianID),
	)
}

// PaymentEvent logs a payment workflow outcome. A non-empty reason marks a failure.
func (l *Logger) PaymentEvent(event, interventionID string, amountCents int64, reason string) {
	if reason == "" {
		l.Info("payment_event",
			slog.String("event", event),
			slog.String("intervention_id", interventionID),
			slog.Int64("amount_cents", amountCents),
		)
		return
	}
	l.Warn("payment_event",
		slog.String("event", event),
		slog.String("intervention_id", interventionID),
		slog.Int64("amount_cents", amountCents),
		slog.String("reason", reason),
	)
}

// NotificationResult logs the outcome of one channel send.
func (l *Logger) NotificationResult(channel, eventKind string, ok bool, errMsg string) {
	if ok {
		l.Info("notification_sent",
			slog.String("channel", channel),
			slog.String("event", eventKind),
		)
		return
	}
	l.Warn("notification_failed",
		slog.String("channel", channel),
		slog.String("event", eventKind),
		slog.String("error", errMsg),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
