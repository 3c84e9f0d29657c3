package errors

//go:generate templ generate -f overlay.templ

import (
	"context"
	"fmt"
	"strings"
)

// OverlayID is the DOM id of the rendered overlay, used by the reload client
// to replace or remove it.
const OverlayID = "siteforge-error-overlay"

// location renders file:line:column, or just the file when the position is
// unknown.
func location(e *TransformError) string {
	if e.Line <= 0 {
		return e.File
	}
	return fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
}

// RenderOverlay renders Overlay to a string.
func RenderOverlay(ctx context.Context, errs []*TransformError) (string, error) {
	var b strings.Builder
	if err := Overlay(errs).Render(ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}
