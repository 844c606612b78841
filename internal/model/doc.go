// Package model defines shared data types used across the farm.
//
// Conventions:
//   - Accounts are keyed by their checksummed wallet address
//   - Proxies are URLs (scheme://[user:pass@]host:port)
//   - Points are float64 rounded to 3 decimals before persistence
package model
