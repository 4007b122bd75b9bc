// Package client fetches the guild resources from an S3-compatible bucket.
//
// Requests are plain net/http HEAD and GET calls carrying a SigV4
// Authorization header computed by guildsync.Signer. No AWS SDK is involved.
//
// # Basic Usage
//
//	cfg := &client.Config{
//		BaseURL:   "https://guild-bucket.s3.eu-west-2.amazonaws.com/",
//		Region:    "eu-west-2",
//		AccessKey: accessKey,
//		SecretKey: secretKey,
//	}
//
//	c, err := client.New(cfg, client.WithTimeout(10*time.Second))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	body, ok := c.Events(ctx)
//	if !ok {
//		// keep using the local copy
//	}
//
// # Failure Handling
//
// FetchObject, FetchLastModified and the named resource operations never
// return an error. Every failure is logged with its diagnostics and reported
// as absence. Get and Head return the underlying error for callers that need
// to distinguish failures; see Classify.
//
// # Output Formatting
//
// Use formatters for human-readable or JSON output:
//
//	formatter := client.NewFormatter(jsonOutput)
//	formatter.FormatObject(os.Stdout, obj)
package client
