package image

import (
	"image"
	"io"
)

// Input describes an uploaded image as received from the client.
type Input struct {
	Reader       io.Reader
	ContentType  string
	DeclaredSize int64
	Filename     string
}

// Normalized is a decoded bitmap that has been bounded in width and flattened onto an opaque background.
type Normalized struct {
	Image  *image.RGBA
	Width  int
	Height int
}

// Output contains the artefacts produced by the preprocessor.
type Output struct {
	// Base64 is the standard-encoded JPEG payload sent upstream.
	Base64       string
	JPEG         []byte
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
	SourceFormat string
	SourceBytes  int64
	// DebugPath is empty when the debug copy was disabled or could not be written.
	DebugPath string
}

// ValidationResult captures the outcome of byte level validation.
type ValidationResult struct {
	Format   string
	Width    int
	Height   int
	FileSize int64
}
