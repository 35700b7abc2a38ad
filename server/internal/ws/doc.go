// Package ws streams coverage snapshots to WebSocket subscribers.
//
// A Hub broadcasts the snapshot served by GET /api/v1/snapshot every
// stream_interval, and right after each accepted report (Notify). New
// subscribers get a snapshot on connect. The server mounts the hub at
// /ws/stream; ?location=CBCH.H1,BACNH.H1 narrows the locations a subscriber
// receives, while health still covers every location.
//
// Envelope:
//
//	{
//	  "event":  "snapshot" | "report",
//	  "run_id": "…",           // report events only
//	  "data":   { /* GET /api/v1/snapshot body */ }
//	}
//
// Subscribers that fall behind by more than a small queue are disconnected.
// Origins are not checked; put CORS in front of the server.
package ws
