// Package feeds implements the durable feed and subscription repositories:
// per-feed event streams ordered by commit versionstamp, gapless seq
// allocation, collapsed (keyed) writes, the subscriber-side subscription
// records with their jumbo migration, and the multi-feed difference reader
// used for catch-up.
//
// Every operation takes a kv.Tx and composes freely with other repository
// calls inside one transaction. None of the repositories start goroutines.
package feeds
