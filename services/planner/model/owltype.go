// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"fmt"
	"strings"
)

// XSDNamespace is the XML Schema datatype namespace used by ontology tags.
const XSDNamespace = "http://www.w3.org/2001/XMLSchema#"

// Canonical datatype tags written by this package.
const (
	OwlDouble   = XSDNamespace + "double"
	OwlInt      = XSDNamespace + "int"
	OwlBoolean  = XSDNamespace + "boolean"
	OwlString   = XSDNamespace + "string"
	OwlDuration = XSDNamespace + "duration"
)

var owlLocalKinds = map[string]Kind{
	"double":             KindDouble,
	"float":              KindDouble,
	"decimal":            KindDouble,
	"int":                KindInt,
	"integer":            KindInt,
	"long":               KindInt,
	"short":              KindInt,
	"nonnegativeinteger": KindInt,
	"positiveinteger":    KindInt,
	"boolean":            KindBool,
	"bool":               KindBool,
	"string":             KindString,
	"duration":           KindDuration,
	"daytimeduration":    KindDuration,
}

// KindFromOwlType maps a datatype tag to a Kind.
//
// Accepted forms: the full XSD IRI, the "xsd:" prefixed name, and the bare
// local name. Matching on the local name is case-insensitive.
func KindFromOwlType(tag string) (Kind, error) {
	local := strings.TrimSpace(tag)
	switch {
	case strings.HasPrefix(local, XSDNamespace):
		local = strings.TrimPrefix(local, XSDNamespace)
	case strings.HasPrefix(local, "xsd:"):
		local = strings.TrimPrefix(local, "xsd:")
	}
	if k, ok := owlLocalKinds[strings.ToLower(local)]; ok {
		return k, nil
	}
	return KindInvalid, fmt.Errorf("%w: datatype %q", ErrUnsupportedValueType, tag)
}

// OwlType returns the canonical XSD IRI for a kind.
func OwlType(k Kind) string {
	switch k {
	case KindDouble:
		return OwlDouble
	case KindInt:
		return OwlInt
	case KindBool:
		return OwlBoolean
	case KindString:
		return OwlString
	case KindDuration:
		return OwlDuration
	default:
		return ""
	}
}
