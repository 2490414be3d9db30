// Package routing fetches candidate routes, scores them, and selects the
// safest one for navigation.
//
// Scoring requests run concurrently, one per candidate, and are joined before
// selection. A HIGH_RISK candidate is never selected; when every candidate is
// HIGH_RISK the selection is empty and the caller reports that no safe route
// exists.
package routing
