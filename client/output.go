package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/galexite/guildsync"
)

// Formatter formats results for output.
type Formatter interface {
	FormatObject(w io.Writer, obj *Object) error
	FormatObjectInfo(w io.Writer, info *ObjectInfo) error
	FormatSignature(w io.Writer, sig guildsync.Signature, amzDate string) error
	FormatReport(w io.Writer, report guildsync.SyncReport) error
	FormatStates(w io.Writer, states []guildsync.SyncState) error
	FormatError(w io.Writer, err error) error
}

// NewFormatter returns the appropriate formatter based on flags.
func NewFormatter(jsonOutput bool) Formatter {
	if jsonOutput {
		return &JSONFormatter{}
	}
	return &HumanFormatter{}
}

// HumanFormatter outputs human-readable text.
type HumanFormatter struct{}

// FormatObject writes the raw body so it can be piped into other tools.
func (f *HumanFormatter) FormatObject(w io.Writer, obj *Object) error {
	_, err := io.WriteString(w, obj.Body)
	if err == nil && !strings.HasSuffix(obj.Body, "\n") {
		_, err = io.WriteString(w, "\n")
	}
	return err
}

// FormatObjectInfo writes the Last-Modified time in RFC 3339.
func (f *HumanFormatter) FormatObjectInfo(w io.Writer, info *ObjectInfo) error {
	_, err := fmt.Fprintln(w, info.LastModified.UTC().Format(time.RFC3339))
	return err
}

// FormatSignature writes every intermediate of a signing run.
func (f *HumanFormatter) FormatSignature(w io.Writer, sig guildsync.Signature, amzDate string) error {
	_, _ = fmt.Fprintln(w, "Canonical request:")
	_, _ = fmt.Fprintln(w, indent(sig.CanonicalRequest))
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "String to sign:")
	_, _ = fmt.Fprintln(w, indent(sig.StringToSign))
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "%s: %s\n", guildsync.HeaderAmzDate, amzDate)
	_, _ = fmt.Fprintf(w, "%s: %s\n", guildsync.HeaderContentSHA256, guildsync.EmptyPayloadHash)
	_, _ = fmt.Fprintf(w, "%s: %s\n", guildsync.HeaderAuthorization, sig.Header())
	return nil
}

// FormatReport formats a sync report as a table.
func (f *HumanFormatter) FormatReport(w io.Writer, report guildsync.SyncReport) error {
	_, _ = fmt.Fprintf(w, "Run %s (%s)\n", report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "%-20s  %-10s  %-20s  %10s\n", "RESOURCE", "OUTCOME", "LAST MODIFIED", "SIZE")
	_, _ = fmt.Fprintf(w, "%s  %s  %s  %s\n", strings.Repeat("-", 20), strings.Repeat("-", 10), strings.Repeat("-", 20), strings.Repeat("-", 10))

	for i := range report.Resources {
		r := &report.Resources[i]
		_, _ = fmt.Fprintf(w, "%-20s  %-10s  %-20s  %10s\n",
			r.Resource,
			r.Outcome,
			formatTime(r.LastModified),
			formatSize(r.SizeBytes),
		)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "  Error: %s\n", r.Error)
		}
	}
	return nil
}

// FormatStates formats recorded sync state as a table.
func (f *HumanFormatter) FormatStates(w io.Writer, states []guildsync.SyncState) error {
	if len(states) == 0 {
		_, _ = fmt.Fprintln(w, "Nothing synced yet")
		return nil
	}

	_, _ = fmt.Fprintf(w, "%-20s  %-20s  %-20s  %10s  %s\n", "RESOURCE", "LAST MODIFIED", "SYNCED", "SIZE", "ETAG")
	_, _ = fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
		strings.Repeat("-", 20), strings.Repeat("-", 20), strings.Repeat("-", 20), strings.Repeat("-", 10), strings.Repeat("-", 16))

	for i := range states {
		s := &states[i]
		etag := s.ETag
		if len(etag) > 16 {
			etag = etag[:16]
		}
		_, _ = fmt.Fprintf(w, "%-20s  %-20s  %-20s  %10s  %s\n",
			s.Resource,
			formatTime(s.LastModified),
			formatTime(s.SyncedAt),
			formatSize(s.SizeBytes),
			etag,
		)
	}
	return nil
}

// FormatError formats an error as human-readable text.
func (f *HumanFormatter) FormatError(w io.Writer, err error) error {
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return nil
}

// JSONFormatter outputs JSON.
type JSONFormatter struct{}

// FormatObject formats an object as JSON.
func (f *JSONFormatter) FormatObject(w io.Writer, obj *Object) error {
	return writeJSON(w, obj)
}

// FormatObjectInfo formats object metadata as JSON.
func (f *JSONFormatter) FormatObjectInfo(w io.Writer, info *ObjectInfo) error {
	return writeJSON(w, info)
}

// FormatSignature formats a signing run as JSON.
func (f *JSONFormatter) FormatSignature(w io.Writer, sig guildsync.Signature, amzDate string) error {
	output := struct {
		CanonicalRequest string `json:"canonical_request"`
		StringToSign     string `json:"string_to_sign"`
		Scope            string `json:"scope"`
		AmzDate          string `json:"x_amz_date"`
		ContentSHA256    string `json:"x_amz_content_sha256"`
		Authorization    string `json:"authorization"`
	}{
		CanonicalRequest: sig.CanonicalRequest,
		StringToSign:     sig.StringToSign,
		Scope:            sig.Scope,
		AmzDate:          amzDate,
		ContentSHA256:    guildsync.EmptyPayloadHash,
		Authorization:    sig.Header(),
	}
	return writeJSON(w, output)
}

// FormatReport formats a sync report as JSON.
func (f *JSONFormatter) FormatReport(w io.Writer, report guildsync.SyncReport) error {
	return writeJSON(w, report)
}

// FormatStates formats recorded sync state as JSON.
func (f *JSONFormatter) FormatStates(w io.Writer, states []guildsync.SyncState) error {
	output := struct {
		Resources []guildsync.SyncState `json:"resources"`
	}{
		Resources: states,
	}
	if output.Resources == nil {
		output.Resources = []guildsync.SyncState{}
	}
	return writeJSON(w, output)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := struct {
		Error string `json:"error"`
	}{
		Error: err.Error(),
	}
	return writeJSON(w, output)
}

// writeJSON writes a value as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// MaskSecret masks a secret string, showing only first 4 and last 4 characters.
// If the secret is too short, returns all asterisks.
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
