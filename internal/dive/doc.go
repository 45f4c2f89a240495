// Package dive defines the core data model shared by the import engine:
// decoded dives, their sample series, gas mixes, fingerprints, and device
// identity.
//
// Values of these types are transient: the decoder produces them per import
// attempt, the trimmer and reconciliation layers consume them, and the store
// turns them into persisted rows. Nothing in this package touches storage or
// transport.
package dive
