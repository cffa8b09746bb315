// Package util holds small string and URL helpers shared by the testbed packages.
//
// Key utilities:
//   - SafeTruncate: shortens credentials before they reach a log line
//   - NormalizePath: canonical form for configured path segments
//   - AppendPath: joins a base URL and a tenant or endpoint path
package util
