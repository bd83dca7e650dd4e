// Package clouds connects image configs to the clouds they are imported into.
//
// Every cloud has an Adapter. Stub adapters only build and upload; the AWS
// adapter imports through EC2 snapshot import and the Hetzner adapter writes
// the image to a rescue-mode server and snapshots it.
package clouds
