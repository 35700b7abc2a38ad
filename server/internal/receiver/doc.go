// Package receiver implements the HTTP endpoint (POST /api/v1/reports) that
// accepts analysis reports from hydrowatch agents.
//
// Receiver.ServeHTTP decodes one JSON Report and checks that run_id and
// as_of are present and location codes are unique and non-empty (400 if
// not), then calls store.Put to record it. Authentication is enforced
// upstream by the auth middleware, so the receiver itself only performs
// structural validation.
//
// New(st, onReport) wires the receiver to the given report store.
package receiver
