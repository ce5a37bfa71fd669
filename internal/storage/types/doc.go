// Package types defines the core data types for the baro storage engine:
// the fixed-size on-disk records (RawSample, Rollup, LifetimeStats), their
// binary codec, and the tier cascade configuration.
//
// All records have a fixed byte size and a stable little-endian layout so
// that tier files are plain arrays of records and file integrity can be
// checked with a single size-modulo test.
package types
