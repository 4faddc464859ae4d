package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	warns  []string
	errors []string
}

func (l *recordingLogger) Error(_ context.Context, _ error, msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(_ context.Context, _ error, msg string, _ ...interface{}) {
	l.warns = append(l.warns, msg)
}

func TestErrorSeverityString(t *testing.T) {
	testCases := []struct {
		severity ErrorSeverity
		expected string
	}{
		{ErrorSeverityInfo, "info"},
		{ErrorSeverityWarning, "warning"},
		{ErrorSeverityError, "error"},
		{ErrorSeverityFatal, "fatal"},
		{ErrorSeverity(999), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.severity.String())
		})
	}
}

func TestShrootError_Error(t *testing.T) {
	cause := fmt.Errorf("dom: operation not supported")
	err := ErrUnsupportedHost("img", cause).WithFile("pages/index.html")

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_UNSUPPORTED_HOST]")
	assert.Contains(t, msg, "component:img")
	assert.Contains(t, msg, "pages/index.html")
	assert.Contains(t, msg, "operation not supported")
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestShrootError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrBehaviorLoad("x-counter", "counter", nil))

	assert.True(t, errors.Is(err, NewBehaviorError(ErrCodeBehaviorLoad, "", nil)))
	assert.False(t, errors.Is(err, NewBehaviorError(ErrCodeBehaviorPanic, "", nil)))
	assert.True(t, IsType(err, ErrorTypeBehavior))
	assert.True(t, IsRecoverable(err))
	assert.False(t, IsRecoverable(errors.New("plain")))
}

func TestErrorHandler_RoutesByType(t *testing.T) {
	logger := &recordingLogger{}
	collector := NewCollector(0)
	handler := NewErrorHandler(logger, collector)

	handler.Handle(context.Background(), nil)
	handler.Handle(context.Background(), ErrUnsupportedHost("img", nil))
	handler.Handle(context.Background(), NewIOError(ErrCodeFileNotFound, "missing page", nil))
	handler.Handle(context.Background(), errors.New("plain"))

	assert.Equal(t, []string{"injection error occurred"}, logger.warns)
	assert.Equal(t, []string{"io error occurred", "Unhandled error occurred"}, logger.errors)

	issues := collector.Issues()
	require.Len(t, issues, 2)
	assert.Equal(t, ErrorSeverityWarning, issues[0].Severity)
	assert.Equal(t, "img", issues[0].Component)
	assert.Equal(t, ErrorSeverityError, issues[1].Severity)
}

func TestCollector_Limit(t *testing.T) {
	collector := NewCollector(2)
	for i := 0; i < 5; i++ {
		collector.Add(Issue{Message: fmt.Sprintf("issue %d", i)})
	}

	issues := collector.Issues()
	require.Len(t, issues, 2)
	assert.Equal(t, "issue 3", issues[0].Message)
	assert.Equal(t, "issue 4", issues[1].Message)
	assert.False(t, issues[0].Timestamp.IsZero())

	collector.Clear()
	assert.False(t, collector.HasErrors())
}

func TestCollector_ByComponent(t *testing.T) {
	collector := NewCollector(0)
	collector.AddError(ErrUnsupportedHost("img", nil))
	collector.AddError(ErrBehaviorLoad("x-card", "card", nil))
	collector.AddError(nil)

	assert.Len(t, collector.ByComponent("x-card"), 1)
	assert.Empty(t, collector.ByComponent("x-missing"))
}

func TestCollector_Concurrency(t *testing.T) {
	collector := NewCollector(0)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			collector.AddError(fmt.Errorf("error %d", i))
			_ = collector.Issues()
		}(i)
	}
	wg.Wait()

	assert.Len(t, collector.Issues(), 10)
}

func TestValidationErrorCollection(t *testing.T) {
	var vec ValidationErrorCollection
	assert.Nil(t, vec.ToShrootError())
	assert.Equal(t, "no validation errors", vec.Error())

	vec.AddField("server.port", -1, "port must be between 0 and 65535")
	assert.Contains(t, vec.Error(), "server.port")

	vec.AddField("logging.level", "loud", "unknown level", "use debug, info, warn or error")
	assert.Equal(t, "validation failed with 2 errors", vec.Error())

	se := vec.ToShrootError()
	require.NotNil(t, se)
	assert.Equal(t, ErrorTypeValidation, se.Type)
	assert.Contains(t, se.Context, "logging.level")
}
