// Package shipper delivers analysis reports off the agent.
//
// Shipper.Ship() is non-blocking: reports are placed in an in-memory channel
// (default capacity 100). When the buffer is full the oldest entry is
// evicted so the latest analysis is always preserved.
//
// Shipper.Run() drains the buffer in order, POSTing each report as JSON to
// {server_endpoint}/api/v1/reports and retrying with truncated exponential
// backoff (1s→60s, ±25% jitter) on transport errors and 5xx responses.
// 4xx responses discard the report immediately rather than retrying.
//
// Auth: API key or bearer header, mTLS client certificate, or none.
//
// KafkaSink (kafka.go) optionally fans each report out as one message per
// location summary, keyed by location code.
package shipper
