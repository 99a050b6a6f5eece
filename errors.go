package bk

import "errors"

// Sentinel errors returned by the bk package.
var (
	// ErrNotAnArchive indicates the input is not a readable ZIP archive.
	ErrNotAnArchive = errors.New("bk: not a zip archive")

	// ErrMissingPackageDocument indicates no OPF package document could be
	// located (no usable container.xml rootfile and no .opf entry) or the
	// located path does not exist in the archive.
	ErrMissingPackageDocument = errors.New("bk: package document not found")

	// ErrMalformedManifest indicates the package document could not be
	// decoded or declares no manifest items.
	ErrMalformedManifest = errors.New("bk: malformed package manifest")

	// ErrEmptySpine indicates the book has zero readable linear chapters.
	ErrEmptySpine = errors.New("bk: spine has no readable chapters")

	// ErrDRMProtected indicates the book is protected by DRM
	// (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP) and cannot be read.
	ErrDRMProtected = errors.New("bk: file is DRM protected")

	// ErrFileNotFound indicates the requested file does not exist
	// in the archive.
	ErrFileNotFound = errors.New("bk: file not found in archive")

	// ErrInvalidChapter indicates a Chapter handle is invalid
	// (for example, a zero-value Chapter without an archive entry).
	ErrInvalidChapter = errors.New("bk: invalid chapter handle")

	// ErrInvalidWidth indicates a display width of zero or less.
	ErrInvalidWidth = errors.New("bk: width must be positive")
)
