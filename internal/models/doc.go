// Package models defines the data model for the media replication pipeline.
//
// A MediaItem tracks one source URL through download and distribution; an
// UploadRecord tracks the item's progress against a single destination.
// Status values round-trip exactly to their stored encoding, and any
// unrecognized stored value maps to an explicit Unknown variant rather than
// a zero value that could be mistaken for valid state.
package models
