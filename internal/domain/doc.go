// Package domain models citizen incident reports, the risk clusters derived
// from them, candidate routes, and the navigation session that supervises a
// trip.
//
// # Coordinates
//
// All positions are WGS-84 in longitude/latitude order ([Coordinate]),
// matching GeoJSON and the Mapbox APIs. Distances use the haversine formula on
// a 6371 km sphere; see [HaversineKm].
//
// # Report categories
//
//	Poor Lighting | Suspicious Loitering | Verbal Harassment |
//	Physical Threat | Abandoned/Dark Area | Unsafe Crowd Behavior
//
// Poor Lighting and Abandoned/Dark Area feed the lighting estimate.
// Suspicious Loitering and Unsafe Crowd Behavior feed the crowd estimate.
//
// # Route geometry
//
// Routes travel as Google/Mapbox encoded polylines with precision 5
// (geometries=polyline). The encoding stores latitude before longitude;
// [DecodePolyline] and [EncodePolyline] convert to and from [Coordinate].
//
// # Risk classification
//
// The scoring oracle returns a numeric score and a binary verdict
// (SAFE | HIGH_RISK). Lower scores are safer. A HIGH_RISK route is never
// selected for navigation.
//
// # Navigation session
//
// A [Session] is PLANNING or ACTIVE. While ACTIVE the frozen geometry is
// immutable; the session record is persisted through a [KeyValueStore] so a
// restarted process resumes the same trip.
package domain
