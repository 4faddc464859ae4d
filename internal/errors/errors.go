package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Issue is one problem recorded against a page while it was processed.
type Issue struct {
	Type      ErrorType     `json:"type"`
	Code      string        `json:"code"`
	Component string        `json:"component,omitempty"`
	File      string        `json:"file,omitempty"`
	Message   string        `json:"message"`
	Severity  ErrorSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorSeverity represents the severity of an issue
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (i *Issue) Error() string {
	location := i.File
	if i.Component != "" {
		location += " <" + i.Component + ">"
	}
	return fmt.Sprintf("%s: %s: %s", location, i.Severity, i.Message)
}

// Collector keeps the issues reported for a page. It implements Notifier,
// so it can sit behind an ErrorHandler.
type Collector struct {
	issues []Issue
	limit  int
	mutex  sync.RWMutex
}

// NewCollector creates a collector that keeps at most limit issues,
// dropping the oldest first. A limit <= 0 keeps everything.
func NewCollector(limit int) *Collector {
	return &Collector{
		issues: make([]Issue, 0),
		limit:  limit,
	}
}

// Add records an issue.
func (c *Collector) Add(issue Issue) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if issue.Timestamp.IsZero() {
		issue.Timestamp = time.Now()
	}
	c.issues = append(c.issues, issue)
	if c.limit > 0 && len(c.issues) > c.limit {
		c.issues = append(c.issues[:0], c.issues[len(c.issues)-c.limit:]...)
	}
}

// AddError records err, deriving the issue fields from a ShrootError when
// there is one.
func (c *Collector) AddError(err error) {
	if err == nil {
		return
	}
	issue := Issue{Message: err.Error(), Severity: ErrorSeverityError}

	var se *ShrootError
	if errors.As(err, &se) {
		issue.Type = se.Type
		issue.Code = se.Code
		issue.Component = se.Component
		issue.File = se.FilePath
		if se.Recoverable {
			issue.Severity = ErrorSeverityWarning
		}
	}
	c.Add(issue)
}

// NotifyError implements Notifier.
func (c *Collector) NotifyError(_ context.Context, err *ShrootError) error {
	c.AddError(err)
	return nil
}

// Issues returns a copy of the recorded issues, oldest first.
func (c *Collector) Issues() []Issue {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make([]Issue, len(c.issues))
	copy(result, c.issues)
	return result
}

// HasErrors returns true if anything was recorded
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.issues) > 0
}

// Clear drops every recorded issue.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.issues = c.issues[:0]
}

// ByComponent returns the issues recorded for one component type.
func (c *Collector) ByComponent(component string) []Issue {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var result []Issue
	for _, issue := range c.issues {
		if issue.Component == component {
			result = append(result, issue)
		}
	}
	return result
}
