// Package s3 provides a small client for S3 and S3-compatible object stores.
//
// It backs s3:// image storage and stages disk images for the AWS snapshot
// import. Credentials are static when an access key is given and otherwise
// come from the default AWS credential chain.
package s3
