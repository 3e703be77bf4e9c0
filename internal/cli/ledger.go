package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/ledger"
)

type LedgerFilterOptions struct {
	Query string
	Type  string
	From  string
	To    string
}

func (f *LedgerFilterOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Query, "q", "", "search item or counterparty")
	cmd.Flags().StringVar(&f.Type, "type", "all", "entry type (all|sale|baki|inventory|payment)")
	cmd.Flags().StringVar(&f.From, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.To, "to", "", "last day, YYYY-MM-DD")
}

func (f *LedgerFilterOptions) load(sess *session) (domain.LedgerResponse, error) {
	filter, err := sess.service.NewLedgerFilter(f.Query, f.Type, f.From, f.To)
	if err != nil {
		return domain.LedgerResponse{}, WrapExitError(ExitCommandError, "invalid filter", err)
	}
	view, err := sess.service.Ledger(sess.ctx, filter)
	if err != nil {
		return domain.LedgerResponse{}, WrapExitError(ExitFailure, "failed to load ledger", err)
	}
	return view, nil
}

func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List or export the master ledger",
	}
	cmd.AddCommand(newLedgerListCommand(rootOpts))
	cmd.AddCommand(newLedgerExportCommand(rootOpts))
	return cmd
}

func newLedgerListCommand(rootOpts *RootOptions) *cobra.Command {
	filter := &LedgerFilterOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print ledger entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			view, err := filter.load(sess)
			if err != nil {
				return err
			}
			if rootOpts.Format != "text" {
				return writeStructured(cmd.OutOrStdout(), rootOpts.Format, view)
			}
			return writeLedgerText(cmd.OutOrStdout(), view, sess.loc)
		},
	}
	filter.bind(cmd)
	return cmd
}

func writeLedgerText(w io.Writer, view domain.LedgerResponse, loc *time.Location) error {
	if len(view.Entries) == 0 {
		_, err := fmt.Fprintln(w, "No ledger entries.")
		return err
	}
	for _, entry := range view.Entries {
		if _, err := fmt.Fprintf(w, "%s  %-9s  %-40s  %-20s  %12s  %12s  %s\n",
			entry.Date.In(loc).Format("2006-01-02 15:04"),
			entry.Category,
			truncate(entry.Item, 40),
			truncate(entry.Counterparty, 20),
			entry.Amount.StringFixed(2),
			entry.Unpaid.StringFixed(2),
			entry.Status,
		); err != nil {
			return err
		}
	}
	s := view.Summary
	_, err := fmt.Fprintf(w, "\n%d entries  total %s  paid %s  unpaid %s\n", s.Entries, s.Amount.StringFixed(2), s.Paid.StringFixed(2), s.Unpaid.StringFixed(2))
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

type ExportOptions struct {
	LedgerFilterOptions
	As           string
	Out          string
	Columns      string
	UploadBucket string
}

func newLedgerExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered ledger as CSV, XLSX or a printable page",
		Long: `Write the filtered ledger to a file or a Cloud Storage bucket.

Examples:
  specsbiz ledger export --db ./shop.db --as csv
  specsbiz ledger export --db ./shop.db --as print --columns date,item,total --out report.html
  specsbiz ledger export --database-url $DATABASE_URL --owner shop-1 --as xlsx --upload-bucket shop-reports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, rootOpts, opts)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.As, "as", "csv", "export format (csv|xlsx|print)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output path; defaults to the dated export file name")
	cmd.Flags().StringVar(&opts.Columns, "columns", "", "print columns, comma separated")
	cmd.Flags().StringVar(&opts.UploadBucket, "upload-bucket", "", "upload to this Cloud Storage bucket instead of writing a file")
	return cmd
}

func runExport(cmd *cobra.Command, rootOpts *RootOptions, opts *ExportOptions) error {
	sess, err := rootOpts.open(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.Close()

	view, err := opts.load(sess)
	if err != nil {
		return err
	}

	now := time.Now()
	var buf bytes.Buffer
	var ext, contentType string
	switch strings.ToLower(opts.As) {
	case "csv":
		ext, contentType = "csv", "text/csv"
		err = ledger.WriteCSV(&buf, view.Entries, sess.loc)
	case "xlsx":
		ext, contentType = "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = ledger.WriteXLSX(&buf, view.Entries, sess.loc)
	case "print":
		ext, contentType = "html", "text/html; charset=utf-8"
		err = writePrint(sess, &buf, view.Entries, opts.Columns, now)
	default:
		return WrapExitError(ExitCommandError, "invalid export format", fmt.Errorf("%q is not csv, xlsx or print", opts.As))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render export", err)
	}

	name := opts.Out
	if name == "" {
		name = ledger.ExportFileName(now, sess.loc, ext)
	}

	var location string
	if opts.UploadBucket != "" {
		if err := uploadExport(cmd.Context(), opts.UploadBucket, name, contentType, buf.Bytes()); err != nil {
			return WrapExitError(ExitFailure, "failed to upload export", err)
		}
		location = fmt.Sprintf("gs://%s/%s", opts.UploadBucket, name)
	} else {
		if err := os.WriteFile(name, buf.Bytes(), 0o644); err != nil {
			return WrapExitError(ExitFailure, "failed to write export", err)
		}
		location = name
	}

	result := map[string]any{"entries": len(view.Entries), "location": location}
	if rootOpts.Format != "text" {
		return writeStructured(cmd.OutOrStdout(), rootOpts.Format, result)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", len(view.Entries), location)
	return err
}

func writePrint(sess *session, w io.Writer, entries []domain.LedgerEntry, rawColumns string, now time.Time) error {
	columns, err := ledger.ParseColumns(rawColumns)
	if err != nil {
		return err
	}
	settings, err := sess.service.GetSettings(sess.ctx)
	if err != nil {
		return err
	}
	return ledger.WritePrint(w, entries, ledger.PrintOptions{
		ShopName:    settings.ShopName,
		Currency:    settings.Currency,
		Columns:     columns,
		GeneratedAt: now,
		Location:    sess.loc,
	})
}

// uploadExport writes body to gs://bucket/object. GCS_CREDENTIALS_JSON is
// optional; without it Application Default Credentials are used.
func uploadExport(ctx context.Context, bucket string, object string, contentType string, body []byte) error {
	var opts []option.ClientOption
	if credJSON := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(bucket).Object(object).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(body); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}
