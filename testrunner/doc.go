// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package testrunner runs the admin self-test suite: database, schema,
// vote capacity, settings and the optional external services.
//
// A run executes in the background; only one run may be active at a time.
// The last 20 runs are kept in memory.
package testrunner
