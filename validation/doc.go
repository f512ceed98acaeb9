// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package validation checks request bodies against their validate struct tags
// and turns failures into readable English messages keyed by JSON field name.
package validation
