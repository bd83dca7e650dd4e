// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable max attempts,
// initial delay, and maximum delay. [Poll] waits for a remote condition such as
// an EC2 snapshot import task or an image becoming available. Both are used for
// cloud API calls, SSH dialing and release metadata downloads.
package retry
