// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for operator-supplied values that are
// interpolated into vector store queries. Using these validators turns a
// malformed RECALL_COLLECTIONS entry into a startup error instead of a
// GraphQL failure on the first search.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// collectionPattern matches valid Weaviate class names.
// Class names are interpolated into GraphQL queries, so only GraphQL-safe
// identifiers starting with an uppercase letter are accepted.
// Max length: 64 characters
var collectionPattern = regexp.MustCompile(`^[A-Z][_0-9A-Za-z]{0,63}$`)

// ValidateCollection validates a knowledge collection (Weaviate class) name.
//
// Valid names:
//   - 1-64 characters
//   - Start with an uppercase letter A-Z
//   - Continue with letters, digits, or underscores
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateCollection(name); err != nil {
//	    return nil, fmt.Errorf("invalid collection: %w", err)
//	}
//	// Safe to use in a GraphQL query
func ValidateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}

	if !collectionPattern.MatchString(name) {
		return fmt.Errorf("invalid collection name: %q (must be 1-64 letters, digits, or underscores, starting with an uppercase letter)", name)
	}

	return nil
}

// ValidateCollections validates multiple collection names.
// Returns an error listing all invalid names if any fail validation.
func ValidateCollections(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateCollection(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid collection names: %v", invalid)
	}
	return nil
}

// SanitizeCollection normalizes and validates a collection name.
// Weaviate capitalizes the first letter of class names on creation, so
// "document" and "Document" address the same class; this applies the
// same rule before validating.
//
// Use this when reading collection names from configuration:
//
//	name, err := validation.SanitizeCollection(raw)
//	if err != nil {
//	    return err
//	}
//	// name matches the class Weaviate actually stores
func SanitizeCollection(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		r, size := utf8.DecodeRuneInString(trimmed)
		trimmed = string(unicode.ToUpper(r)) + trimmed[size:]
	}
	if err := ValidateCollection(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
