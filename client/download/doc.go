// Package download streams HTTP response bodies to disk with optional
// checksum validation and progress reporting.
//
// [Handle] writes the body to a temporary file alongside the destination
// path, creating missing parent directories first, then renames it into
// place on success:
//
//	err := download.Handle(ctx, resp.Body, resp.ContentLength, "assets/report.pdf", logger,
//		download.WithSHA256(expectedHex),
//		download.WithProgress(),
//	)
//
// Most callers reach it through [github.com/vaulta/vaulta-go/client.Client.Download]
// or the SaveTo option of the top-level vaulta package.
package download
