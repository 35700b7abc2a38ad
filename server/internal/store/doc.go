// Package store holds the latest coverage report per location in memory,
// together with the most recent run's metadata and skipped inputs. Entries
// not refreshed within the TTL are evicted by a background loop.
package store
