package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category is the user-facing class of an API failure.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryAuthentication
	CategoryPermission
	CategoryNotFound
	CategoryRateLimited
	CategoryServer
	CategoryTimeout
	CategoryNetwork
)

var categoryNames = map[Category]string{
	CategoryGeneric:        "generic",
	CategoryAuthentication: "authentication failed",
	CategoryPermission:     "permission denied",
	CategoryNotFound:       "not found",
	CategoryRateLimited:    "rate limited",
	CategoryServer:         "server error",
	CategoryTimeout:        "timeout",
	CategoryNetwork:        "network error",
}

var categoryMessages = map[Category]string{
	CategoryGeneric:        "Something went wrong. Please try again.",
	CategoryAuthentication: "Your session has expired. Please log in again.",
	CategoryPermission:     "You don't have permission to do that.",
	CategoryNotFound:       "The requested item could not be found.",
	CategoryRateLimited:    "Too many requests. Please wait a moment and try again.",
	CategoryServer:         "The server ran into a problem. Please try again later.",
	CategoryTimeout:        "The request timed out. Please try again.",
	CategoryNetwork:        "Unable to reach the server. Check your connection and try again.",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Message is the static text shown to users for this category.
func (c Category) Message() string {
	if msg, ok := categoryMessages[c]; ok {
		return msg
	}
	return categoryMessages[CategoryGeneric]
}

// Error is returned by every Client method that fails. Err holds the
// underlying cause for logs and is never shown to users.
type Error struct {
	Status   int
	Category Category
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("api error (%s, status %d): %v", e.Category, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("api error (%s, status %d)", e.Category, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("api error (%s): %v", e.Category, e.Err)
	default:
		return fmt.Sprintf("api error (%s)", e.Category)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CategoryForStatus maps an HTTP status code to a Category.
func CategoryForStatus(status int) Category {
	switch {
	case status == http.StatusUnauthorized:
		return CategoryAuthentication
	case status == http.StatusForbidden:
		return CategoryPermission
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CategoryTimeout
	case status >= 500 && status <= 599:
		return CategoryServer
	default:
		return CategoryGeneric
	}
}

func statusError(status int, body string) *Error {
	var err error
	if body != "" {
		err = errors.New(body)
	}
	return &Error{Status: status, Category: CategoryForStatus(status), Err: err}
}

// transportError classifies a failure that happened before any response.
func transportError(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Category: CategoryTimeout, Err: err}
	}
	return &Error{Category: CategoryNetwork, Err: err}
}

// CategoryOf returns the Category of err, or CategoryGeneric for errors that
// did not come from this package.
func CategoryOf(err error) Category {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return CategoryGeneric
}

// Message converts any error into the static user-facing text for its
// category. It returns "" for a nil error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return CategoryOf(err).Message()
}
