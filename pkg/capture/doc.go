// Package capture renders a whole scrollable document into one image.
//
// The page is measured once, then captured viewport by viewport over a grid
// of cells, column by column and top to bottom within a column. Each
// capture is scaled back to layout pixels when the device pixel ratio is
// above 1, cropped to the viewport and stored in a per-run workspace. The
// tiles are stitched into columns, the columns joined left to right, and
// the composite trimmed to the document size.
//
// Basic usage:
//
//	res, err := capture.Capture(ctx, ctrl, "page.png", capture.Options{})
//
// Loosely typed input, such as a decoded JSON job, goes through
// RequestFromParams, which rejects bad parameters before the page is
// touched.
package capture
