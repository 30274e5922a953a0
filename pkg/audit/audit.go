package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mnohosten/pkto/pkg/stm"
)

// Operation identifies which stm entry point an audit event describes.
type Operation string

const (
	OperationBegin  Operation = "begin"
	OperationRead   Operation = "read"
	OperationWrite  Operation = "write"
	OperationCommit Operation = "commit"
	OperationAbort  Operation = "abort"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// AuditEvent represents a single audit log entry for one stm call.
type AuditEvent struct {
	Timestamp    time.Time     `json:"timestamp"`
	Operation    Operation     `json:"operation"`
	TxID         stm.TxID      `json:"txId"`
	GITS         stm.TxID      `json:"gits"`
	GCTS         stm.TxID      `json:"gcts"`
	TobjID       int           `json:"tobjId,omitempty"`
	User         string        `json:"user,omitempty"`
	RemoteAddr   string        `json:"remoteAddr,omitempty"`
	Status       stm.Status    `json:"status"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Severity     Severity      `json:"severity"`
	// AbortClass names the abort path behind an Aborted outcome as far
	// as the logger's caller can tell (spec §7): LogRead sets
	// "missing_predecessor_or_invalidated", LogAbort sets "explicit",
	// LogCommit records whatever class its caller passes; "" for
	// non-aborts.
	AbortClass string `json:"abortClass,omitempty"`
}

// Config holds audit logging configuration.
type Config struct {
	Enabled      bool      // Enable/disable audit logging
	OutputWriter io.Writer // Output destination (file, stdout, etc.)
	Format       string    // "json" or "text"
	MinSeverity  Severity  // Minimum severity to log
	Operations   []Operation // Operations to audit (empty = all)
}

// DefaultConfig returns a default audit configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		OutputWriter: os.Stdout,
		Format:       "json",
		MinSeverity:  SeverityInfo,
		Operations:   nil, // log all operations
	}
}

// AuditLogger handles audit logging of transaction lifecycle events.
type AuditLogger struct {
	config *Config
	mu     sync.RWMutex
	file   *os.File // if logging to a file
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *Config) (*AuditLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	return &AuditLogger{
		config: config,
	}, nil
}

// NewFileAuditLogger creates an audit logger that writes to a file.
func NewFileAuditLogger(filePath string, config *Config) (*AuditLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	config.OutputWriter = file

	return &AuditLogger{
		config: config,
		file:   file,
	}, nil
}

// Log logs an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.config.Enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.shouldLog(event.Severity) {
		return nil
	}
	if !l.shouldLogOperation(event.Operation) {
		return nil
	}

	var output []byte
	var err error

	if l.config.Format == "json" {
		output, err = json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal audit event: %w", err)
		}
		output = append(output, '\n')
	} else {
		output = []byte(l.formatText(event))
	}

	_, err = l.config.OutputWriter.Write(output)
	return err
}

// LogBegin logs a tbegin call.
func (l *AuditLogger) LogBegin(tx *stm.Transaction, user string, duration time.Duration, err error) error {
	event := &AuditEvent{
		Timestamp: time.Now(),
		Operation: OperationBegin,
		User:      user,
		Duration:  duration,
		Severity:  l.getSeverity(err == nil),
	}
	if tx != nil {
		event.TxID, event.GITS, event.GCTS = tx.ID, tx.GITS, tx.GCTS
	}
	event.Success = err == nil
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return l.Log(event)
}

// LogRead logs an stmRead call.
func (l *AuditLogger) LogRead(tx *stm.Transaction, tobjID int, user string, status stm.Status, duration time.Duration, err error) error {
	event := l.baseEvent(OperationRead, tx, tobjID, user, status, duration, err)
	if status == stm.Aborted && err == nil {
		event.AbortClass = "missing_predecessor_or_invalidated"
	}
	return l.Log(event)
}

// LogWrite logs an stmWrite call.
func (l *AuditLogger) LogWrite(tx *stm.Transaction, tobjID int, user string, status stm.Status, duration time.Duration, err error) error {
	return l.Log(l.baseEvent(OperationWrite, tx, tobjID, user, status, duration, err))
}

// LogCommit logs an stmTryCommit call, tagging the abort classification
// when the commit itself chose to yield (spec §4.3 step 6) rather than
// hitting a fatal condition.
func (l *AuditLogger) LogCommit(tx *stm.Transaction, user string, status stm.Status, abortClass string, duration time.Duration, err error) error {
	event := l.baseEvent(OperationCommit, tx, 0, user, status, duration, err)
	event.AbortClass = abortClass
	return l.Log(event)
}

// LogAbort logs an explicit stmAbort call.
func (l *AuditLogger) LogAbort(tx *stm.Transaction, user string, duration time.Duration, err error) error {
	event := l.baseEvent(OperationAbort, tx, 0, user, stm.Aborted, duration, err)
	event.AbortClass = "explicit"
	return l.Log(event)
}

func (l *AuditLogger) baseEvent(op Operation, tx *stm.Transaction, tobjID int, user string, status stm.Status, duration time.Duration, err error) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now(),
		Operation: op,
		TobjID:    tobjID,
		User:      user,
		Status:    status,
		Success:   err == nil && status == stm.OK,
		Duration:  duration,
		Severity:  l.getSeverity(err == nil),
	}
	if tx != nil {
		event.TxID, event.GITS, event.GCTS = tx.ID, tx.GITS, tx.GCTS
	}
	if err != nil {
		event.ErrorMessage = err.Error()
		event.Severity = SeverityError
	}
	return event
}

// Close closes the audit logger and any open files.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetEnabled enables or disables audit logging at runtime.
func (l *AuditLogger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// IsEnabled returns whether audit logging is enabled.
func (l *AuditLogger) IsEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

func (l *AuditLogger) shouldLog(severity Severity) bool {
	severityLevels := map[Severity]int{
		SeverityInfo:    1,
		SeverityWarning: 2,
		SeverityError:   3,
	}
	return severityLevels[severity] >= severityLevels[l.config.MinSeverity]
}

func (l *AuditLogger) shouldLogOperation(op Operation) bool {
	if len(l.config.Operations) == 0 {
		return true
	}
	for _, allowed := range l.config.Operations {
		if op == allowed {
			return true
		}
	}
	return false
}

func (l *AuditLogger) getSeverity(success bool) Severity {
	if success {
		return SeverityInfo
	}
	return SeverityError
}

// formatText formats an event as human-readable text.
func (l *AuditLogger) formatText(event *AuditEvent) string {
	status := "OK"
	if !event.Success {
		status = "ABORTED"
	}

	msg := fmt.Sprintf("[%s] [%s] [%s] %s tx=%d its=%d cts=%d",
		event.Timestamp.Format(time.RFC3339),
		event.Severity,
		status,
		event.Operation,
		event.TxID,
		event.GITS,
		event.GCTS,
	)

	if event.TobjID != 0 {
		msg += fmt.Sprintf(" tobj=%d", event.TobjID)
	}
	if event.User != "" {
		msg += fmt.Sprintf(" user=%s", event.User)
	}
	if event.Duration > 0 {
		msg += fmt.Sprintf(" (took %v)", event.Duration)
	}
	if event.AbortClass != "" {
		msg += fmt.Sprintf(" - abort class: %s", event.AbortClass)
	}
	if event.ErrorMessage != "" {
		msg += fmt.Sprintf(" - error: %s", event.ErrorMessage)
	}

	msg += "\n"
	return msg
}

// GlobalAuditLogger is a global audit logger instance.
var GlobalAuditLogger *AuditLogger

// InitGlobalLogger initializes the global audit logger.
func InitGlobalLogger(config *Config) error {
	logger, err := NewAuditLogger(config)
	if err != nil {
		return err
	}
	GlobalAuditLogger = logger
	return nil
}

// InitGlobalFileLogger initializes the global audit logger to write to a file.
func InitGlobalFileLogger(filePath string, config *Config) error {
	logger, err := NewFileAuditLogger(filePath, config)
	if err != nil {
		return err
	}
	GlobalAuditLogger = logger
	return nil
}
