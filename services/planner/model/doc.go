// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the data model shared by every stage of the twin
// planner: typed values, observable properties, configurable parameters,
// the immutable PropertyCache snapshot, and candidate actions.
//
// # Values
//
// A Value is a closed tagged union over five kinds (double, int, bool,
// string, duration). It is a comparable struct so it can be used as a map
// key and compared with ==. Behavior that depends on the kind (ordering,
// parsing, quantization, candidate enumeration) lives in the valuehandler
// package, not on Value itself.
//
// # Snapshots
//
// A PropertyCache is immutable once built. Simulated futures are produced
// by calling Edit on a cache, mutating the returned CacheBuilder, and
// calling Build:
//
//	next, err := cache.Edit().
//	    SetValue("temperature", model.DoubleValue(21.5)).
//	    Build()
//
// The source cache is never modified, so a snapshot may be shared freely
// across goroutines and tree levels.
//
// # Actions
//
// Action is a flattened variant: Kind selects between actuation (set an
// actuator to a discrete state) and reconfiguration (set a configurable
// parameter to a new value). Two actions are equal when kind, target and
// value are equal; the display name does not participate.
package model
