// Package component defines the lifecycle contracts busbridge components
// implement: discoverable metadata and health reporting, plus the unified
// Initialize/Start/Stop lifecycle used by the daemon to manage them.
package component
