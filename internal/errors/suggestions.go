package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// SuggestionContext provides context for generating suggestions
type SuggestionContext struct {
	ConfigPath   string
	PagesDir     string
	Pages        []string
	BehaviorsDir string
	Behaviors    []string
	Port         int
}

// Suggest picks suggestions for err based on its code, falling back to
// matching the message for errors that never went through ShrootError.
func Suggest(err error, ctx *SuggestionContext) []ErrorSuggestion {
	if err == nil {
		return nil
	}
	if ctx == nil {
		ctx = &SuggestionContext{}
	}

	var se *ShrootError
	if errors.As(err, &se) {
		switch se.Code {
		case ErrCodePageNotFound, ErrCodeFileNotFound:
			name, _ := se.Context["page"].(string)
			if name == "" {
				name = se.FilePath
			}
			return PageNotFoundError(name, ctx)
		case ErrCodePathTraversal, ErrCodeInvalidPath:
			return []ErrorSuggestion{{
				Title:       "Use a page name relative to the page directory",
				Description: "Page names may not leave " + orDefault(ctx.PagesDir, "pages.dir"),
				Example:     "blog/post",
			}}
		case ErrCodeBehaviorLoad:
			return BehaviorLoadError(se.Component, ctx)
		case ErrCodeConfigInvalid:
			return ConfigurationError(se.Error(), ctx.ConfigPath, ctx)
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "address already in use"), strings.Contains(msg, "permission denied") && ctx.Port > 0:
		return ServerStartError(err, ctx.Port, ctx)
	case strings.Contains(msg, "unmarshal"), strings.Contains(msg, "yaml:"):
		return ConfigurationError(msg, ctx.ConfigPath, ctx)
	}
	return nil
}

// PageNotFoundError generates suggestions for a page that could not be opened
func PageNotFoundError(name string, ctx *SuggestionContext) []ErrorSuggestion {
	dir := orDefault(ctx.PagesDir, "./pages")
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check the page file exists",
			Description: "Page names resolve to files under " + dir,
			Command:     "ls -la " + dir,
		},
	}

	if similar := closest(name, ctx.Pages); len(similar) > 0 {
		for _, s := range similar {
			suggestions = append(suggestions, ErrorSuggestion{
				Title:       "Did you mean '" + s + "'?",
				Description: "Similar page found",
				Command:     "shroot expand " + dir + "/" + s + ".html",
			})
		}
	} else if len(ctx.Pages) > 0 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Available pages",
			Description: strings.Join(ctx.Pages, ", "),
		})
	}

	return suggestions
}

// BehaviorLoadError generates suggestions for a behavior that failed to load
func BehaviorLoadError(component string, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Use a built-in behavior",
			Description: "Built-in behaviors: hidden, mark-upgraded, noop",
			Example:     `<template sri-mode="open" sri-tagname="` + orDefault(component, "x-card") + `" sri-behavior="mark-upgraded">`,
		},
	}

	if ctx.BehaviorsDir == "" {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Configure a behaviors directory",
			Description: "File behaviors are only loaded when behaviors.dir is set",
			Example:     "behaviors:\n  dir: \"./behaviors\"",
		})
	} else {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check the behavior file",
			Description: "A reference \"counter\" resolves to counter.yml, counter.yaml or counter.json",
			Command:     "ls -la " + ctx.BehaviorsDir,
		})
	}

	if len(ctx.Behaviors) > 0 {
		sorted := append([]string(nil), ctx.Behaviors...)
		sort.Strings(sorted)
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Available behaviors",
			Description: strings.Join(sorted, ", "),
		})
	}

	return suggestions
}

// ServerStartError generates suggestions for server startup failures
func ServerStartError(err error, port int, ctx *SuggestionContext) []ErrorSuggestion {
	var suggestions []ErrorSuggestion
	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") {
		suggestions = append(suggestions,
			ErrorSuggestion{
				Title:       "Port already in use",
				Description: fmt.Sprintf("Port %d is already being used by another process", port),
				Command:     fmt.Sprintf("lsof -i :%d", port),
			},
			ErrorSuggestion{
				Title:   "Use a different port",
				Command: fmt.Sprintf("shroot serve --port %d", port+1),
			},
		)
	}

	if strings.Contains(errStr, "permission denied") && port < 1024 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use unprivileged port",
			Description: "Ports below 1024 require root privileges",
			Command:     "shroot serve --port 8080",
		})
	}

	return suggestions
}

// ConfigurationError generates suggestions for configuration issues
func ConfigurationError(configError string, configPath string, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check configuration file",
			Description: "Verify the configuration file exists and has valid syntax",
			Command:     "cat " + orDefault(configPath, ".shroot.yml"),
		},
	}

	lower := strings.ToLower(configError)
	if strings.Contains(lower, "yaml") || strings.Contains(lower, "unmarshal") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "Use proper indentation and avoid tabs",
		})
	}
	if strings.Contains(lower, "dir") || strings.Contains(lower, "path") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:   "Override the directory from the environment",
			Example: "SHROOT_PAGES_DIR=./site shroot serve",
		})
	}

	return suggestions
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		fmt.Fprintf(&output, "  %d. %s\n", i+1, suggestion.Title)
		if suggestion.Description != "" {
			fmt.Fprintf(&output, "     %s\n", suggestion.Description)
		}
		if suggestion.Command != "" {
			fmt.Fprintf(&output, "     Run: %s\n", suggestion.Command)
		}
		if suggestion.Example != "" {
			fmt.Fprintf(&output, "     Example: %s\n", suggestion.Example)
		}
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	return FormatSuggestions(e.Title, e.Suggestions)
}

// Unwrap returns the original error
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}

// WithSuggestions wraps err in an EnhancedError when Suggest has something
// to offer, and returns err unchanged otherwise.
func WithSuggestions(err error, ctx *SuggestionContext) error {
	suggestions := Suggest(err, ctx)
	if len(suggestions) == 0 {
		return err
	}
	return NewEnhancedError(err.Error(), err, suggestions)
}

// closest returns the candidates that contain name or are contained by it,
// ignoring case.
func closest(name string, candidates []string) []string {
	if name == "" {
		return nil
	}
	lower := strings.ToLower(name)
	var result []string
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if lc == lower {
			continue
		}
		if strings.Contains(lc, lower) || strings.Contains(lower, lc) {
			result = append(result, c)
		}
	}
	return result
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
