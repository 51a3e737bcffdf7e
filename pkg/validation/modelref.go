// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for values that
// cross trust boundaries.
//
// Model references arrive from HTTP path parameters and YAML files and are
// used as Badger keys, Ollama request fields, and log attributes. Validating
// them here prevents key collisions, path traversal, and log injection.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// modelRefPattern matches model references across the supported backends:
// HuggingFace-style "Qwen/Qwen3-4B", Ollama-style "qwen3:4b" and
// "granite4:micro-h", and OpenAI-style "gpt-4o-mini". One optional namespace
// segment, one optional tag, dots and hyphens inside segments.
var modelRefPattern = regexp.MustCompile(
	`^[A-Za-z0-9][A-Za-z0-9._\-]*(/[A-Za-z0-9][A-Za-z0-9._\-]*)?(:[A-Za-z0-9][A-Za-z0-9._\-]*)?$`)

// maxModelRefLen bounds reference length; the longest hub identifiers in
// practice stay well under this.
const maxModelRefLen = 128

// ValidateModelRef validates a model reference string.
//
// # Description
//
// Accepts the identifier shapes the generator backends use and rejects
// everything that could escape a storage key or corrupt a log line:
// whitespace, control characters, "..", empty or oversized strings, and
// anything with more than one namespace or tag separator.
//
// # Inputs
//
//   - ref: The model reference to validate, e.g. "Qwen/Qwen3-4B".
//
// # Outputs
//
//   - error: Non-nil with a reason when the reference is invalid.
func ValidateModelRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("model reference is empty")
	}
	if len(ref) > maxModelRefLen {
		return fmt.Errorf("model reference exceeds %d characters", maxModelRefLen)
	}
	if strings.Contains(ref, "..") {
		return fmt.Errorf("model reference %q contains a path traversal sequence", ref)
	}
	if !modelRefPattern.MatchString(ref) {
		return fmt.Errorf("model reference %q has invalid format", ref)
	}
	return nil
}
