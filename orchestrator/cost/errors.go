// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

package cost

import "errors"

// Common errors returned by ledger stores and audit sinks
var (
	// ErrLedgerNotFound indicates no persisted ledger exists for the period
	ErrLedgerNotFound = errors.New("ledger not found for period")

	// ErrStoreUnavailable indicates the backing store cannot be reached
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	// ErrInvalidPeriodKey indicates a malformed period key
	ErrInvalidPeriodKey = errors.New("invalid period key")
)
