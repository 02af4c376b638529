package storage

import "errors"

var (
	ErrCreatorNotFound  = errors.New("creator not found")
	ErrCreatorInactive  = errors.New("creator is not active")
	ErrStreamNotFound   = errors.New("stream not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrAlreadyLive      = errors.New("creator already has a live stream")
	ErrNotLive          = errors.New("stream is not live")
	ErrNotOwner         = errors.New("stream belongs to another creator")
	ErrDuplicateName    = errors.New("name already in use")
	ErrTitleRequired    = errors.New("title is required")
)
