package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/galexite/guildsync"
	"github.com/galexite/guildsync/client"
	"github.com/galexite/guildsync/config"
)

// errAbsent makes the command exit non-zero after the failure was printed.
var errAbsent = errors.New("resource unavailable")

var getCmd = &cobra.Command{
	Use:   "get <resource>",
	Short: "Download a resource from the bucket and print it",
	Long: `Download events.json or organisations.json and write the body to stdout.

Examples:
  guildsync get events
  guildsync get organisations.json | jq .
  guildsync get events --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var lastModifiedCmd = &cobra.Command{
	Use:   "last-modified <resource>",
	Short: "Print the Last-Modified time of a resource",
	Long: `Send a signed HEAD request and print the Last-Modified time in RFC 3339.

Examples:
  guildsync last-modified events
  guildsync last-modified organisations --json`,
	Args: cobra.ExactArgs(1),
	RunE: runLastModified,
}

var signCmd = &cobra.Command{
	Use:   "sign <method> <resource>",
	Short: "Print the signature of a request without sending it",
	Long: `Print the canonical request, string to sign and headers for a HEAD or GET
request. Compare them with the bucket's SignatureDoesNotMatch response to
find signing problems.

Examples:
  guildsync sign GET events
  guildsync sign HEAD organisations --date 20200221T120000Z`,
	Args: cobra.ExactArgs(2),
	RunE: runSign,
}

func init() {
	signCmd.Flags().String("date", "", "request time as YYYYMMDDTHHMMSSZ or RFC 3339 (default: now)")
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	resource, err := guildsync.ParseResource(args[0])
	if err != nil {
		return err
	}

	c, err := newClient(ctx, cfg, nil)
	if err != nil {
		return err
	}

	formatter := getFormatter(cmd)
	obj, err := c.Get(ctx, resource.String())
	if err != nil {
		_ = formatter.FormatError(os.Stderr, describeFailure(err))
		return errAbsent
	}
	return formatter.FormatObject(os.Stdout, obj)
}

func runLastModified(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	resource, err := guildsync.ParseResource(args[0])
	if err != nil {
		return err
	}

	c, err := newClient(ctx, cfg, nil)
	if err != nil {
		return err
	}

	formatter := getFormatter(cmd)
	info, err := c.Head(ctx, resource.String())
	if err != nil {
		_ = formatter.FormatError(os.Stderr, describeFailure(err))
		return errAbsent
	}
	return formatter.FormatObjectInfo(os.Stdout, info)
}

func runSign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	method := strings.ToUpper(args[0])
	if method != "GET" && method != "HEAD" {
		return fmt.Errorf("sign: unsupported method %q (use GET or HEAD)", args[0])
	}

	resource, err := guildsync.ParseResource(args[1])
	if err != nil {
		return err
	}

	dateFlag, _ := cmd.Flags().GetString("date")
	at, err := parseSignDate(dateFlag)
	if err != nil {
		return err
	}

	c, err := newClient(ctx, cfg, nil)
	if err != nil {
		return err
	}

	sig, amzDate := c.Sign(method, resource.String(), at)
	return getFormatter(cmd).FormatSignature(os.Stdout, sig, amzDate)
}

func parseSignDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	if t, err := guildsync.ParseAmzDate(s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sign: invalid --date %q", s)
	}
	return t, nil
}

// describeFailure prefixes err with its failure kind.
func describeFailure(err error) error {
	return fmt.Errorf("%s: %w", client.Classify(err), err)
}
