package models

import "time"

// Auction lifecycle states.
const (
	StatusUpcoming = "UPCOMING"
	StatusActive   = "ACTIVE"
	StatusClosed   = "CLOSED"
)

// StatusAt derives the lifecycle status of an auction from the clock alone.
// Explicit admin overrides go through IsValidStatusChange instead.
func StatusAt(now, createdAt, expiresAt time.Time) string {
	switch {
	case now.Before(createdAt):
		return StatusUpcoming
	case !now.Before(expiresAt):
		return StatusClosed
	default:
		return StatusActive
	}
}

// IsValidStatusChange reports whether an explicit status transition is allowed.
func IsValidStatusChange(oldStatus, newStatus string) bool {
	switch oldStatus {
	case StatusActive:
		return newStatus == StatusClosed || newStatus == StatusUpcoming
	case StatusUpcoming:
		return newStatus == StatusActive
	default:
		return false
	}
}
