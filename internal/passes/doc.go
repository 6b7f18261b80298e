// Package passes predicts when satellites are visible from a ground observer.
//
// A Detector scans an ElevationFunc over a Window for rise and set crossings
// of a minimum elevation and the culmination between them. A Predictor binds
// the detector to SGP4 and the topocentric transform, for one satellite or a
// batch of them.
//
// # SampleGapMiss
//
// The scan only sees the elevation function at its samples. A pass that
// starts and ends between two samples is recovered when the sample between
// them is a local maximum, but a pass narrower than Step that lies on a
// monotonic stretch of samples is not detected. This is a limitation, not an
// error: nothing is reported for it. Report.SkippedSamples counts failed
// evaluations that widen the gaps; a smaller Step reduces the risk.
package passes
