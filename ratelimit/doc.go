// Package ratelimit implements a sliding-window request limiter over the shared
// store.
//
// A [RuleSet] holds an ordered list of [Rule] values. The first rule whose path,
// method, authentication and tier conditions match a request applies; later rules
// are not consulted even if they would also match. Operators must order specific
// rules before general ones.
//
// Each (rule, key) pair owns one ordered set whose members are request timestamps.
// A check prunes entries at or beyond the window edge, counts what is left, records
// the current request and refreshes the key TTL inside one MULTI/EXEC. The request
// is limited when the count before recording already reached the rule maximum; a
// limited request is still recorded.
//
// The limiter fails open: when the store cannot be reached the request is admitted,
// the result is flagged with FailedOpen and the failure is logged at error level.
//
// Keys default to the client address. Addresses and composite keys are best-effort
// identity signals; clients sharing an address share a quota.
package ratelimit
