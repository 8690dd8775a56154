// Package network locates domain infrastructure.
//
// This package handles:
//   - Domain controller discovery via DNS SRV records
//   - KDC resolution from explicit configuration or discovery
package network
