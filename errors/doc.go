// Package errors provides standardized error handling for busbridge
// components. It classifies errors as transient, invalid or fatal, exposes
// standard error variables for common conditions, and provides wrap helpers
// that produce the consistent "component.method: action failed" texture used
// across the module.
package errors
