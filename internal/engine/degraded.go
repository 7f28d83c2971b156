// ============================================================================
// ruvltra-core Inference Engine - Degraded-Mode Detection
// ============================================================================
//
// Package: internal/engine
// File: degraded.go
// Function: Shared self-detection evidence check for adapters that can
// silently fall back to a non-native implementation, per spec §4.2.4.
//
// ============================================================================

package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// fallbackMarker is the documented string a backend embeds in its own
// output when it has silently dropped into a degraded implementation
// instead of the real model, per spec §4.2.4.
const fallbackMarker = "[fallback-mode]"

// jsVersionTagRe matches a semantic version tag suffixed "-js", the
// evidence spec §4.2.4 calls out for a wasm/emscripten build standing in
// for a native runtime.
var jsVersionTagRe = regexp.MustCompile(`\bv?\d+\.\d+\.\d+-js\b`)

// detectDegradedOutput scans text for either documented piece of evidence
// that a call actually ran in degraded mode rather than on the real
// backend. expectedDependency names what the caller's note should say was
// expected instead, per spec §4.2.4's "record a human-readable note that
// includes the expected native dependency for the host".
func detectDegradedOutput(text, expectedDependency string) (string, bool) {
	if strings.Contains(text, fallbackMarker) {
		return fmt.Sprintf("output carried the fallback-mode marker %q; expected %s", fallbackMarker, expectedDependency), true
	}
	if tag := jsVersionTagRe.FindString(text); tag != "" {
		return fmt.Sprintf("version tag %q indicates a wasm/js fallback build; expected %s", tag, expectedDependency), true
	}
	return "", false
}
