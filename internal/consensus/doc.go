// Package consensus turns raw incident reports into validated risk clusters.
//
// [Store] holds reports and throttles repeat submissions from one device.
// [ActiveClusters] recomputes clusters on every call: reports older than
// [DecayHours] are dropped, the rest are grouped first-fit within
// [ClusterRadiusKm], and only clusters witnessed by at least [ThresholdCount]
// distinct devices survive. [Estimator] summarises nearby clusters into a zone
// status for ambient display.
package consensus
