// Package batch runs the requests of a job file on a pool of workers, each
// capturing in its own browser page. Finished requests are reported to an
// optional Tracker and skipped when it already knows them.
package batch
