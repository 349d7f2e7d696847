package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetDefaultLogDir(t *testing.T) {
	logDir, err := GetDefaultLogDir()
	assert.NoError(t, err, "failed to get default log directory")

	assert.NotEmpty(t, logDir, "log directory should not be empty")
	assert.Contains(t, logDir, "antimony/logs")
}

func TestLoggerInitialization(t *testing.T) {
	tmpDir := t.TempDir()
	logDir := filepath.Join(tmpDir, "antimony", "logs")

	err := InitializeWithDir(logDir)
	assert.NoError(t, err, "Failed to initialize logger")
	defer func() {
		err := Close()
		assert.NoError(t, err)
	}()

	_, err = os.Stat(logDir)
	assert.False(t, os.IsNotExist(err), "Log directory was not created: %s", logDir)

	expectedLogFile := filepath.Join(logDir, time.Now().Format("20060102")+"-antimony.log")
	_, err = os.Stat(expectedLogFile)
	assert.False(t, os.IsNotExist(err), "Log file was not created: %s", expectedLogFile)
}

func TestLogEvent(t *testing.T) {
	tmpDir := t.TempDir()
	logDir := filepath.Join(tmpDir, "antimony", "logs")

	err := reinitializeForTest(logDir)
	assert.NoError(t, err, "Failed to initialize logger")
	defer func() {
		err := Close()
		assert.NoError(t, err)
	}()

	event := Event{
		EventType: EventTypeRunStarted,
		Message:   "Test run started",
		Profile:   "firefox",
		Instance:  "antimony-test",
	}

	err = LogEvent(event)
	assert.NoError(t, err, "Failed to log event")

	logFilePath := filepath.Join(logDir, time.Now().Format("20060102")+"-antimony.log")
	data, err := os.ReadFile(logFilePath)
	assert.NoError(t, err, "Failed to read log file")

	var loggedEvent Event
	err = json.Unmarshal(data, &loggedEvent)
	assert.NoError(t, err, "Failed to parse logged event")

	assert.Equal(t, EventTypeRunStarted, loggedEvent.EventType)
	assert.Equal(t, "firefox", loggedEvent.Profile)
}

func TestLogRunExited(t *testing.T) {
	tmpDir := t.TempDir()
	logDir := filepath.Join(tmpDir, "antimony", "logs")

	err := reinitializeForTest(logDir)
	assert.NoError(t, err, "Failed to initialize logger")
	defer func() {
		err := Close()
		assert.NoError(t, err)
	}()

	LogRunExited("firefox", "antimony-test", 1)

	logFilePath := filepath.Join(logDir, time.Now().Format("20060102")+"-antimony.log")
	data, err := os.ReadFile(logFilePath)
	assert.NoError(t, err, "Failed to read log file")

	var event Event
	err = json.Unmarshal(data, &event)
	assert.NoError(t, err, "Failed to parse event")

	assert.Equal(t, EventTypeRunExited, event.EventType)
	assert.Equal(t, "firefox", event.Profile)
	assert.EqualValues(t, 1, event.Details["exit_code"])
}

func TestInitializeWithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "custom.log")

	err := reinitializeForTest("")
	if err == nil {
		_ = Close()
	}

	once = sync.Once{}
	err = InitializeWithFile(logFile)
	assert.NoError(t, err, "Failed to initialize logger with file")
	defer func() {
		err := Close()
		assert.NoError(t, err)
	}()

	event := Event{
		EventType: EventTypeRunStarted,
		Message:   "Test custom file logging",
		Profile:   "firefox",
	}

	err = LogEvent(event)
	assert.NoError(t, err, "Failed to log event")

	_, err = os.Stat(logFile)
	assert.False(t, os.IsNotExist(err), "Custom log file was not created: %s", logFile)

	data, err := os.ReadFile(logFile)
	assert.NoError(t, err, "Failed to read custom log file")
	assert.NotEmpty(t, data, "Custom log file is empty")

	var loggedEvent Event
	err = json.Unmarshal(data, &loggedEvent)
	assert.NoError(t, err, "Failed to parse logged event")
	assert.Equal(t, "firefox", loggedEvent.Profile)
}

func TestCleanupOldLogs(t *testing.T) {
	tmpDir := t.TempDir()
	logDir := filepath.Join(tmpDir, "antimony", "logs")
	err := os.MkdirAll(logDir, 0755)
	assert.NoError(t, err, "Failed to create log directory")

	oldDate := time.Now().AddDate(0, 0, -10)
	oldLogFile := filepath.Join(logDir, oldDate.Format("20060102")+"-antimony.log")
	err = os.WriteFile(oldLogFile, []byte("old log"), 0644)
	assert.NoError(t, err, "Failed to create old log file")

	oldTime := time.Now().AddDate(0, 0, -10)
	err = os.Chtimes(oldLogFile, oldTime, oldTime)
	assert.NoError(t, err, "Failed to change file time")

	recentLogFile := filepath.Join(logDir, time.Now().Format("20060102")+"-antimony.log")
	err = os.WriteFile(recentLogFile, []byte("recent log"), 0644)
	assert.NoError(t, err, "Failed to create recent log file")

	logger := &Logger{}
	err = logger.init(logDir)
	assert.NoError(t, err, "Failed to initialize logger")

	defer func() {
		err := logger.Close()
		assert.NoError(t, err)
	}()

	time.Sleep(100 * time.Millisecond)

	_, err = os.Stat(oldLogFile)
	assert.True(t, os.IsNotExist(err), "Old log file should have been deleted")

	_, err = os.Stat(recentLogFile)
	assert.False(t, os.IsNotExist(err), "Recent log file should still exist")
}
