// Package observability carries the ambient logging, metrics,
// tracing, and health-check surface shared by every VDFS component.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithSession adds session_id context to the logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithPeer adds node_id context to the logger.
func (l *Logger) WithPeer(nodeID string) *Logger {
	return &Logger{logger: l.logger.With().Str("node_id", nodeID).Logger()}
}

// WithPath adds file-path context to the logger.
func (l *Logger) WithPath(path string, size int64) *Logger {
	return &Logger{logger: l.logger.With().Str("path", path).Int64("size", size).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

// Error logs an error message.
func (l *Logger) Error(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) { l.logger.Fatal().Err(err).Msg(msg) }

// TransferStarted logs the start of a file transfer session.
func (l *Logger) TransferStarted(sessionID, path string, fileSize int64, totalChunks int) {
	l.logger.Info().
		Str("session_id", sessionID).
		Str("path", path).
		Int64("file_size", fileSize).
		Int("total_chunks", totalChunks).
		Msg("transfer session started")
}

// ChunkSent logs a chunk transmission.
func (l *Logger) ChunkSent(sessionID string, chunkIndex, chunkSize int) {
	l.logger.Debug().
		Str("session_id", sessionID).
		Int("chunk_index", chunkIndex).
		Int("chunk_size", chunkSize).
		Msg("chunk sent")
}

// TransferProgress logs incremental transfer progress.
func (l *Logger) TransferProgress(sessionID string, chunksSent, totalChunks int, rateMbps float64, elapsed time.Duration) {
	progress := float64(chunksSent) / float64(totalChunks) * 100.0
	l.logger.Info().
		Str("session_id", sessionID).
		Int("chunks_sent", chunksSent).
		Int("total_chunks", totalChunks).
		Float64("progress_percent", progress).
		Float64("transfer_rate_mbps", rateMbps).
		Float64("elapsed_seconds", elapsed.Seconds()).
		Msg("transfer progress")
}

// TransferCompleted logs a completed transfer.
func (l *Logger) TransferCompleted(sessionID string, fileSize int64, totalChunks int, duration time.Duration, merkleVerified bool) {
	l.logger.Info().
		Str("session_id", sessionID).
		Int64("file_size", fileSize).
		Int("total_chunks", totalChunks).
		Float64("duration_seconds", duration.Seconds()).
		Bool("merkle_verified", merkleVerified).
		Msg("transfer completed")
}

// TransferFailed logs a failed transfer.
func (l *Logger) TransferFailed(sessionID string, err error) {
	l.logger.Error().Str("session_id", sessionID).Err(err).Msg("transfer failed")
}

// PeerDiscovered logs a newly discovered peer.
func (l *Logger) PeerDiscovered(nodeID, address string) {
	l.logger.Info().Str("node_id", nodeID).Str("address", address).Msg("peer discovered")
}

// PeerLost logs a peer that dropped off discovery.
func (l *Logger) PeerLost(nodeID string) {
	l.logger.Warn().Str("node_id", nodeID).Msg("peer lost")
}

// ConsistencyIssueFound logs one detected consistency issue.
func (l *Logger) ConsistencyIssueFound(issueType, path string) {
	l.logger.Warn().Str("issue_type", issueType).Str("path", path).Msg("consistency issue detected")
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
