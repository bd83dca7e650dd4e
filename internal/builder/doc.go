// Package builder carries out the actions planned for each image config:
// building with Packer, converting, uploading, importing, publishing and
// releasing, or rolling a revision back.
package builder
