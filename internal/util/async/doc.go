// Package async runs one operation per item with a concurrency limit.
//
// [ForEach] is used to work on several image configs at once and to copy
// published images to many regions.
package async
