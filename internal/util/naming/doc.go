// Package naming provides consistent names for temporary build resources,
// import staging objects and image files.
package naming
