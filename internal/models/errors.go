package models

import "errors"

var (
	// ErrNotFound is returned by stores when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOpenMeetingExists is returned when creating a meeting for a room that already has an open one.
	ErrOpenMeetingExists = errors.New("open meeting already exists for room")
)
