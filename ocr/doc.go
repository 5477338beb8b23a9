package ocr

// Package ocr defines the abstraction for plugging OCR engines (for
// example, Tesseract) into text extraction. Scanned papers carry no text
// layer; the extractor renders such pages and feeds them through an
// Engine to stay searchable. The interfaces are small and
// transport-agnostic so engines can be backed by native libraries, local
// binaries, or remote APIs without leaking provider concerns into callers.
