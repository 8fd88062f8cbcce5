// Package storage defines persistence contracts for finished bidding
// sessions.
package storage

import apperrors "github.com/louisbranch/bidstage/internal/platform/errors"

// ErrNotFound indicates no archived snapshot exists for a submission.
var ErrNotFound = apperrors.New(apperrors.CodeArchiveNotFound, "archived snapshot not found")
