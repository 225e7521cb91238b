package db

import "errors"

var (
	// ErrBusinessNotFound is returned when a business id has no row.
	ErrBusinessNotFound = errors.New("business not found")
	// ErrSettingNotFound is returned when a system setting key has no row.
	ErrSettingNotFound = errors.New("setting not found")
	// ErrLockHeld is returned by AcquireLock when another holder owns the key.
	ErrLockHeld = errors.New("lock held by another process")
	// ErrNilRedisStore is returned when a lock is requested without Redis.
	ErrNilRedisStore = errors.New("redis store is nil")
)
