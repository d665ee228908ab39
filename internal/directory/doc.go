// Package directory keeps the client's authoritative list of sessions.
//
// The list starts empty, is fetched once on Start, and is fetched again in
// full after every created, resized or removed event. Re-fetches run in
// trigger order on a dedicated worker. A failed listing leaves the list
// empty rather than stale.
package directory
