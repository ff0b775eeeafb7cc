// Package purge bulk-deletes store records matching a filter pipeline.
//
// Filters apply in a fixed order (time, session id, model name,
// metadata), each stage only narrowing the candidate set. The time
// criterion is mandatory and either a relative window ("24h", "2d",
// "1w", "3m", "all") or an absolute cutoff (ISO-8601 or Unix timestamp).
// Deletion runs in batches of 100 keys; a failed batch is reported in
// the result without stopping the remaining batches.
package purge
