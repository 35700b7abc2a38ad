// Package catalog provides the sources of per-day archive file counts.
//
// Implemented sources: the ONC archive file listing (onc.go), an archive
// exporter's Prometheus text exposition (prometheus.go) and a static YAML
// fixture (fixture.go). Factory: New(config.CatalogConfig) returns the
// configured Source, wrapped in the Redis read-through Cache (cache.go)
// when catalog.cache.addr is set.
//
// Every source returns one record per date of the requested range. When a
// source has no expected count of its own, EstimateExpected derives it from
// the window: the median of non-zero days, at least min_expected, or
// default_expected when the window holds no files.
//
// Authentication (mTLS, API key, bearer, basic, query token) is handled by
// the shared authRoundTripper in base.go.
package catalog
