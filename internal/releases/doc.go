// Package releases turns released image configs into the data the Alpine
// website renders its cloud image download page from.
package releases
