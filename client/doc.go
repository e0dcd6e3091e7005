// Package client executes requests against the Vaulta API on top of
// [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options. Auth, retry,
// throttling and tracing are installed as [net/http.RoundTripper] decorators
// from the [github.com/vaulta/vaulta-go/client/transport] package:
//
//	c, err := client.Build(
//		client.WithTimeout(30*time.Second),
//		client.WithBearerToken(token),
//		client.WithRetry(transport.DefaultBackoff(3)),
//	)
//
// # Making Requests
//
// Construct a [URL] and [Request], then execute with [Client.Do]. Any status
// of 400 or above comes back as an [*errs.Error]:
//
//	u, err := client.URL(baseURL, "/clients", client.WithQueryStrings(map[string]string{"limit": "10"}))
//	req, err := client.Request(ctx, u, http.MethodGet)
//	status, err := c.Do(req, client.WithDestination(&clients))
//
// File uploads use [MultipartRequest], which sniffs each file's content type.
//
// # Raw Content
//
// [Client.Fetch] reads a body into memory and [Client.Download] streams it to
// disk through a temporary file. Both reject any status but the expected one:
//
//	err = c.Download(req, http.StatusOK, "assets/report.pdf",
//		client.WithChecksum(sha256.New(), expectedHex),
//	)
package client
