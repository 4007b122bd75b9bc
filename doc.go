// Package guildsync keeps a local copy of the two JSON resources a guild
// publishes to an S3-compatible bucket: events.json and organisations.json.
//
// The bucket is read without an SDK. Every request is authenticated with an
// AWS Signature V4 Authorization header built by Signer, and resources are
// only downloaded again when the bucket reports a newer Last-Modified time
// than the one recorded locally.
//
// # Key Components
//
//   - Signer: computes the SigV4 Authorization header for a bodyless HEAD or GET
//   - SignatureVerifier: checks SigV4 Authorization headers on incoming requests
//   - SyncService: conditional fetch loop driven by Last-Modified
//   - StateRepo: interface for sync state persistence (PostgreSQL, SQLite)
//   - PayloadStorage: interface for cached payload files (filesystem)
//
// # Example Usage
//
//	signer, err := guildsync.NewSigner(guildsync.SignerConfig{
//	    Region:      "eu-west-2",
//	    Host:        "guild-bucket.s3.eu-west-2.amazonaws.com",
//	    Credentials: creds,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	header := signer.AuthorizationHeader(http.MethodGet, "events.json", guildsync.AmzDate(time.Now()))
//
// See the client package for the bucket fetcher and the http package for the
// read-only mirror server.
package guildsync
