package util

import "strings"

// SafeTruncate returns at most maxLen bytes of s without panicking.
// A negative maxLen is treated as 0.
//
// Example:
//
//	SafeTruncate("test_access_token_abc", 8) // Returns: "test_acc"
//	SafeTruncate("short", 10)                // Returns: "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizePath returns p with exactly one leading slash and no trailing slash.
// The empty string and "/" both normalize to "".
//
// Example:
//
//	NormalizePath("tenant1")   // Returns: "/tenant1"
//	NormalizePath("/tenant1/") // Returns: "/tenant1"
func NormalizePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// AppendPath joins base and p with a single slash between them.
// When p normalizes to "", base is returned unchanged.
func AppendPath(base, p string) string {
	p = NormalizePath(p)
	if p == "" {
		return base
	}
	return strings.TrimRight(base, "/") + p
}
