package errors

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Severity represents the severity of a collected issue
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Issue is one file-scoped problem found during a reload
type Issue struct {
	Code     string
	File     string
	Message  string
	Severity Severity
	Err      error
}

// Error implements the error interface
func (i Issue) Error() string {
	if i.File == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}

	return fmt.Sprintf("%s: %s: %s", i.File, i.Severity, i.Message)
}

// Unwrap returns the error the issue was built from
func (i Issue) Unwrap() error {
	return i.Err
}

// Collector gathers file-scoped errors and warnings for one reload
type Collector struct {
	issues []Issue
	mutex  sync.RWMutex
}

// NewCollector creates a new collector
func NewCollector() *Collector {
	return &Collector{issues: make([]Issue, 0)}
}

// Add records err with the given severity. Nil errors are ignored.
func (c *Collector) Add(err error, severity Severity) {
	if err == nil {
		return
	}

	issue := Issue{Severity: severity, Err: err, Message: err.Error()}

	var qe *QuireError
	if errors.As(err, &qe) {
		issue.Code = qe.Code
		issue.File = qe.FilePath
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.issues = append(c.issues, issue)
}

// AddError records err as an error
func (c *Collector) AddError(err error) {
	c.Add(err, SeverityError)
}

// AddWarning records err as a warning
func (c *Collector) AddWarning(err error) {
	c.Add(err, SeverityWarning)
}

// Issues returns a copy of everything collected, ordered by file then code.
func (c *Collector) Issues() []Issue {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make([]Issue, len(c.issues))
	copy(result, c.issues)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].File != result[j].File {
			return result[i].File < result[j].File
		}

		return result[i].Code < result[j].Code
	})

	return result
}

// Errors returns only issues with error severity
func (c *Collector) Errors() []Issue {
	return c.filter(SeverityError)
}

// Warnings returns only issues with warning severity
func (c *Collector) Warnings() []Issue {
	return c.filter(SeverityWarning)
}

func (c *Collector) filter(severity Severity) []Issue {
	var out []Issue
	for _, issue := range c.Issues() {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}

	return out
}

// ByFile returns the issues reported against file
func (c *Collector) ByFile(file string) []Issue {
	var out []Issue
	for _, issue := range c.Issues() {
		if issue.File == file {
			out = append(out, issue)
		}
	}

	return out
}

// HasErrors returns true if any error-severity issue was collected
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	for _, issue := range c.issues {
		if issue.Severity == SeverityError {
			return true
		}
	}

	return false
}

// Len returns the number of collected issues
func (c *Collector) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.issues)
}
