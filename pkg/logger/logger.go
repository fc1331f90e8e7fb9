package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// ANSI color codes for console output
const (
	ColorReset        = "\033[0m"
	ColorCyan         = "\033[36m"
	ColorGreen        = "\033[32m"
	ColorBrightRed    = "\033[91m"
	ColorBrightYellow = "\033[93m"
	ColorBrightGray   = "\033[90m"
)

// Column widths for aligned console output
const (
	ComponentNameWidth = 12 // Fixed width for component names
	LogLevelWidth      = 7  // Fixed width for log levels (ERROR, WARN, etc.)
)

// Logger is the interface the rest of the tool logs through.
type Logger interface {
	Debug(message string)
	Debugf(format string, args ...interface{})
	Info(message string)
	Infof(format string, args ...interface{})
	Warn(message string)
	Warnf(format string, args ...interface{})
	Error(message string)
	Errorf(format string, args ...interface{})
	Fatal(message string)
	Fatalf(format string, args ...interface{})
	WithFields(fields map[string]string) *LogContext
}

// ConsoleLogger writes timestamped, leveled, optionally colored lines to stdout.
type ConsoleLogger struct {
	componentName string
	version       string

	mu           sync.Mutex
	colorEnabled bool
	exit         func(int)
}

// New creates a new console logger instance.
func New(componentName, version string) *ConsoleLogger {
	return &ConsoleLogger{
		componentName: componentName,
		version:       version,
		colorEnabled:  isTerminal(),
		exit:          os.Exit,
	}
}

// isTerminal checks if we're outputting to a terminal (for color support)
func isTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func (l *ConsoleLogger) colorForLevel(level string) string {
	if !l.colorEnabled {
		return ""
	}

	switch level {
	case "DEBUG":
		return ColorBrightGray
	case "INFO":
		return ColorGreen
	case "WARN":
		return ColorBrightYellow
	case "ERROR", "FATAL":
		return ColorBrightRed
	default:
		return ColorReset
	}
}

// formatComponentName truncates and pads the component name for consistent column width
func formatComponentName(name string) string {
	if len(name) > ComponentNameWidth {
		return name[:ComponentNameWidth-1] + "…"
	}
	return fmt.Sprintf("%-*s", ComponentNameWidth, name)
}

// formatLogLevel pads the log level for consistent column width
func formatLogLevel(level string) string {
	return fmt.Sprintf("%-*s", LogLevelWidth, level)
}

func (l *ConsoleLogger) log(level, message string, fields map[string]string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	for k, v := range fields {
		message += fmt.Sprintf(" %s=%s", k, v)
	}

	var line string
	if l.colorEnabled {
		color := l.colorForLevel(level)
		line = fmt.Sprintf("%s[%s]%s [%s] [%s%s%s] %s",
			ColorCyan, timestamp, ColorReset, formatComponentName(l.componentName),
			color, formatLogLevel(level), ColorReset, message)
	} else {
		line = fmt.Sprintf("[%s] [%s] [%s] %s",
			timestamp, formatComponentName(l.componentName), formatLogLevel(level), message)
	}

	l.mu.Lock()
	fmt.Println(line)
	l.mu.Unlock()
}

// Debug logs a debug message
func (l *ConsoleLogger) Debug(message string) {
	l.log("DEBUG", message, nil)
}

// Debugf logs a formatted debug message
func (l *ConsoleLogger) Debugf(format string, args ...interface{}) {
	l.log("DEBUG", fmt.Sprintf(format, args...), nil)
}

// Info logs an info message
func (l *ConsoleLogger) Info(message string) {
	l.log("INFO", message, nil)
}

// Infof logs a formatted info message
func (l *ConsoleLogger) Infof(format string, args ...interface{}) {
	l.log("INFO", fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message
func (l *ConsoleLogger) Warn(message string) {
	l.log("WARN", message, nil)
}

// Warnf logs a formatted warning message
func (l *ConsoleLogger) Warnf(format string, args ...interface{}) {
	l.log("WARN", fmt.Sprintf(format, args...), nil)
}

// Error logs an error message
func (l *ConsoleLogger) Error(message string) {
	l.log("ERROR", message, nil)
}

// Errorf logs a formatted error message
func (l *ConsoleLogger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", fmt.Sprintf(format, args...), nil)
}

// Fatal logs a fatal message and exits
func (l *ConsoleLogger) Fatal(message string) {
	l.log("FATAL", message, nil)
	l.exit(1)
}

// Fatalf logs a formatted fatal message and exits
func (l *ConsoleLogger) Fatalf(format string, args ...interface{}) {
	l.log("FATAL", fmt.Sprintf(format, args...), nil)
	l.exit(1)
}

// WithFields returns a logging context that appends key=value pairs to each line
func (l *ConsoleLogger) WithFields(fields map[string]string) *LogContext {
	return &LogContext{
		logger: l,
		fields: fields,
	}
}

// LogContext provides field-based logging
type LogContext struct {
	logger *ConsoleLogger
	fields map[string]string
}

func (c *LogContext) Info(message string) {
	c.logger.log("INFO", message, c.fields)
}

func (c *LogContext) Warn(message string) {
	c.logger.log("WARN", message, c.fields)
}

func (c *LogContext) Error(message string) {
	c.logger.log("ERROR", message, c.fields)
}
