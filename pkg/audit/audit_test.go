package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mnohosten/pkto/pkg/stm"
)

func newTestTx(id, its, cts stm.TxID) *stm.Transaction {
	rt := stm.New(1, stm.DefaultConfig())
	tx, err := rt.Begin(stm.NilTimestamp)
	if err != nil {
		panic(err)
	}
	return tx
}

func TestNewAuditLogger(t *testing.T) {
	logger, err := NewAuditLogger(nil)
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected non-nil logger")
	}
	if !logger.IsEnabled() {
		t.Error("Expected logger to be enabled by default")
	}
}

func TestNewFileAuditLogger(t *testing.T) {
	tmpFile := "test_audit.log"
	defer os.Remove(tmpFile)

	logger, err := NewFileAuditLogger(tmpFile, nil)
	if err != nil {
		t.Fatalf("Failed to create file audit logger: %v", err)
	}
	defer logger.Close()

	tx := newTestTx(1, 1, 1)
	if err := logger.LogBegin(tx, "bench", 10*time.Microsecond, nil); err != nil {
		t.Fatalf("Failed to log event: %v", err)
	}
	logger.Close()

	data, err := os.ReadFile(tmpFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected log file to have content")
	}
}

func TestLogBegin(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{Enabled: true, OutputWriter: &buf, Format: "json", MinSeverity: SeverityInfo})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	tx := newTestTx(1, 1, 1)
	if err := logger.LogBegin(tx, "bench", 10*time.Microsecond, nil); err != nil {
		t.Fatalf("LogBegin: %v", err)
	}

	var event AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	if event.Operation != OperationBegin {
		t.Errorf("Operation = %s, want %s", event.Operation, OperationBegin)
	}
	if event.User != "bench" {
		t.Errorf("User = %s, want bench", event.User)
	}
	if !event.Success {
		t.Error("Expected success to be true")
	}
	if event.Severity != SeverityInfo {
		t.Errorf("Severity = %s, want %s", event.Severity, SeverityInfo)
	}
}

func TestLogReadCommitAbort(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{Enabled: true, OutputWriter: &buf, Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	tx := newTestTx(1, 1, 1)

	buf.Reset()
	if err := logger.LogRead(tx, 3, "bench", stm.OK, 5*time.Microsecond, nil); err != nil {
		t.Fatalf("LogRead: %v", err)
	}
	var readEvent AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &readEvent); err != nil {
		t.Fatalf("parse read event: %v", err)
	}
	if readEvent.TobjID != 3 {
		t.Errorf("TobjID = %d, want 3", readEvent.TobjID)
	}

	buf.Reset()
	if err := logger.LogCommit(tx, "bench", stm.Aborted, "priority_loss", 8*time.Microsecond, nil); err != nil {
		t.Fatalf("LogCommit: %v", err)
	}
	var commitEvent AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &commitEvent); err != nil {
		t.Fatalf("parse commit event: %v", err)
	}
	if commitEvent.AbortClass != "priority_loss" {
		t.Errorf("AbortClass = %s, want priority_loss", commitEvent.AbortClass)
	}
	if commitEvent.Success {
		t.Error("Expected Aborted commit to report Success=false")
	}

	buf.Reset()
	if err := logger.LogAbort(tx, "bench", 2*time.Microsecond, nil); err != nil {
		t.Fatalf("LogAbort: %v", err)
	}
	var abortEvent AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &abortEvent); err != nil {
		t.Fatalf("parse abort event: %v", err)
	}
	if abortEvent.AbortClass != "explicit" {
		t.Errorf("AbortClass = %s, want explicit", abortEvent.AbortClass)
	}
}

func TestSeverityFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{Enabled: true, OutputWriter: &buf, Format: "json", MinSeverity: SeverityError})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Log(&AuditEvent{Timestamp: time.Now(), Operation: OperationRead, Success: true, Severity: SeverityInfo})
	if buf.Len() > 0 {
		t.Error("Expected info event to be filtered out")
	}

	logger.Log(&AuditEvent{Timestamp: time.Now(), Operation: OperationCommit, Success: false, Severity: SeverityError})
	if buf.Len() == 0 {
		t.Error("Expected error event to be logged")
	}
}

func TestOperationFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{
		Enabled:      true,
		OutputWriter: &buf,
		Format:       "json",
		Operations:   []Operation{OperationCommit, OperationAbort},
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Log(&AuditEvent{Timestamp: time.Now(), Operation: OperationRead, Success: true, Severity: SeverityInfo})
	if buf.Len() > 0 {
		t.Error("Expected read operation to be filtered out")
	}

	logger.Log(&AuditEvent{Timestamp: time.Now(), Operation: OperationCommit, Success: true, Severity: SeverityInfo})
	if buf.Len() == 0 {
		t.Error("Expected commit operation to be logged")
	}
}

func TestDisabledLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{Enabled: false, OutputWriter: &buf, Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Log(&AuditEvent{Timestamp: time.Now(), Operation: OperationRead, Success: true, Severity: SeverityInfo})
	if buf.Len() > 0 {
		t.Error("Expected no output when logger is disabled")
	}
}

func TestSetEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{Enabled: true, OutputWriter: &buf, Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.SetEnabled(false)
	if logger.IsEnabled() {
		t.Error("Expected logger to be disabled")
	}

	event := &AuditEvent{Timestamp: time.Now(), Operation: OperationRead, Success: true, Severity: SeverityInfo}
	logger.Log(event)
	if buf.Len() > 0 {
		t.Error("Expected no output when logger is disabled")
	}

	logger.SetEnabled(true)
	if !logger.IsEnabled() {
		t.Error("Expected logger to be enabled")
	}
	logger.Log(event)
	if buf.Len() == 0 {
		t.Error("Expected output when logger is re-enabled")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{Enabled: true, OutputWriter: &buf, Format: "text"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	tx := newTestTx(1, 1, 1)
	if err := logger.LogCommit(tx, "bench", stm.OK, "", 50*time.Millisecond, nil); err != nil {
		t.Fatalf("LogCommit: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "commit") {
		t.Error("Expected output to contain 'commit'")
	}
	if !strings.Contains(output, "OK") {
		t.Error("Expected output to contain 'OK'")
	}
	if !strings.Contains(output, "user=bench") {
		t.Error("Expected output to contain user")
	}
	if !strings.Contains(output, "took") {
		t.Error("Expected output to contain duration")
	}
}

func TestErrorLogging(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{Enabled: true, OutputWriter: &buf, Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	testError := fmt.Errorf("test error message")
	tx := newTestTx(1, 1, 1)
	if err := logger.LogRead(tx, 0, "bench", stm.Aborted, 10*time.Millisecond, testError); err != nil {
		t.Fatalf("LogRead: %v", err)
	}

	var event AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	if event.Success {
		t.Error("Expected success to be false")
	}
	if event.Severity != SeverityError {
		t.Errorf("Severity = %s, want %s", event.Severity, SeverityError)
	}
	if event.ErrorMessage != "test error message" {
		t.Errorf("ErrorMessage = %s, want 'test error message'", event.ErrorMessage)
	}
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	if err := InitGlobalLogger(&Config{Enabled: true, OutputWriter: &buf, Format: "json"}); err != nil {
		t.Fatalf("Failed to initialize global logger: %v", err)
	}
	if GlobalAuditLogger == nil {
		t.Fatal("Expected global logger to be initialized")
	}

	tx := newTestTx(1, 1, 1)
	if err := GlobalAuditLogger.LogBegin(tx, "bench", 10*time.Millisecond, nil); err != nil {
		t.Fatalf("Failed to log with global logger: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("Expected global logger to write output")
	}
}

func TestConcurrentLogging(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{Enabled: true, OutputWriter: &buf, Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			logger.Log(&AuditEvent{
				Timestamp: time.Now(),
				Operation: OperationRead,
				TobjID:    id,
				Success:   true,
				Severity:  SeverityInfo,
			})
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	lines := strings.Count(buf.String(), "\n")
	if lines != 10 {
		t.Errorf("Expected 10 log lines, got %d", lines)
	}
}

func TestInitGlobalFileLogger(t *testing.T) {
	tmpFile := "test_global_audit.log"
	defer os.Remove(tmpFile)

	if err := InitGlobalFileLogger(tmpFile, &Config{Enabled: true, Format: "json"}); err != nil {
		t.Fatalf("Failed to initialize global file logger: %v", err)
	}
	defer GlobalAuditLogger.Close()

	tx := newTestTx(1, 1, 1)
	if err := GlobalAuditLogger.LogBegin(tx, "bench", 10*time.Millisecond, nil); err != nil {
		t.Fatalf("Failed to log with global file logger: %v", err)
	}
	GlobalAuditLogger.Close()

	data, err := os.ReadFile(tmpFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected log file to have content")
	}
}

func TestInitGlobalFileLoggerInvalidPath(t *testing.T) {
	err := InitGlobalFileLogger("/invalid/path/that/does/not/exist/audit.log", nil)
	if err == nil {
		t.Error("Expected error for invalid file path")
	}
}

func TestCloseWithoutFile(t *testing.T) {
	logger, err := NewAuditLogger(nil)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close should not error when no file is open: %v", err)
	}
}

func TestSeverityWarning(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewAuditLogger(&Config{Enabled: true, OutputWriter: &buf, Format: "json", MinSeverity: SeverityWarning})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Log(&AuditEvent{Timestamp: time.Now(), Operation: OperationRead, Success: true, Severity: SeverityInfo})
	if buf.Len() > 0 {
		t.Error("Expected info event to be filtered out when MinSeverity=Warning")
	}

	logger.Log(&AuditEvent{Timestamp: time.Now(), Operation: OperationWrite, Success: true, Severity: SeverityWarning})
	if buf.Len() == 0 {
		t.Error("Expected warning event to be logged")
	}

	buf.Reset()
	logger.Log(&AuditEvent{Timestamp: time.Now(), Operation: OperationCommit, Success: false, Severity: SeverityError})
	if buf.Len() == 0 {
		t.Error("Expected error event to be logged when MinSeverity=Warning")
	}
}
