package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"coinwatch/internal/storage"
)

// ListOptions configure the watches list command.
type ListOptions struct {
	// Owner limits output to one chat; empty lists every active watch.
	Owner      string
	ActiveOnly bool
	Out        io.Writer
}

// ExportOptions configure the watches export command.
type ExportOptions struct {
	Owner      string
	ActiveOnly bool
	// CSVPath of "" or "-" writes to Out.
	CSVPath string
	Out     io.Writer
}

func (a *App) loadWatches(ctx context.Context, owner string, activeOnly bool) ([]storage.Watch, error) {
	backend, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	var watches []storage.Watch
	if owner == "" {
		watches, err = backend.Store.ListActiveWatches(ctx)
	} else {
		watches, err = backend.Store.ListWatchesForOwner(ctx, owner)
	}
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return watches, nil
	}
	filtered := watches[:0]
	for _, w := range watches {
		if w.Active {
			filtered = append(filtered, w)
		}
	}
	return filtered, nil
}

// ListWatches prints watches as a table.
func (a *App) ListWatches(ctx context.Context, opts ListOptions) error {
	watches, err := a.loadWatches(ctx, opts.Owner, opts.ActiveOnly)
	if err != nil {
		return err
	}
	return writeWatchTable(opts.Out, watches)
}

// ExportWatches writes watches as CSV.
func (a *App) ExportWatches(ctx context.Context, opts ExportOptions) error {
	watches, err := a.loadWatches(ctx, opts.Owner, opts.ActiveOnly)
	if err != nil {
		return err
	}

	if opts.CSVPath == "" || opts.CSVPath == "-" {
		return writeWatchesCSV(opts.Out, watches)
	}

	if err := ensureDir(opts.CSVPath); err != nil {
		return err
	}
	file, err := os.Create(opts.CSVPath)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := writeWatchesCSV(file, watches); err != nil {
		return err
	}
	a.Logger.Info().Int("watches", len(watches)).Str("path", opts.CSVPath).Msg("watches exported")
	return nil
}

func writeWatchTable(out io.Writer, watches []storage.Watch) error {
	if len(watches) == 0 {
		fmt.Fprintln(out, "no watches found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tOwner\tSymbol\tDirection\tTarget (USD)\tActive\tCreated (UTC)\tTriggered (UTC)\tPrice")
	for _, w := range watches {
		triggeredAt, triggeredPrice := triggerColumns(w)
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
			w.ID,
			sanitizeInline(w.Owner),
			w.Symbol,
			w.Direction,
			w.Target.StringFixed(2),
			w.Active,
			w.CreatedAt.UTC().Format(time.RFC3339),
			triggeredAt,
			triggeredPrice,
		)
	}
	return writer.Flush()
}

func writeWatchesCSV(out io.Writer, watches []storage.Watch) error {
	writer := csv.NewWriter(out)

	header := []string{"id", "owner", "symbol", "asset_ref", "direction", "target_usd", "active", "created_at", "triggered_at", "triggered_price_usd"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, w := range watches {
		triggeredAt, triggeredPrice := triggerColumns(w)
		record := []string{
			strconv.FormatInt(w.ID, 10),
			w.Owner,
			w.Symbol,
			w.AssetRef,
			string(w.Direction),
			w.Target.String(),
			strconv.FormatBool(w.Active),
			w.CreatedAt.UTC().Format(time.RFC3339),
			triggeredAt,
			triggeredPrice,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func triggerColumns(w storage.Watch) (string, string) {
	at, price := "", ""
	if w.TriggeredAt != nil {
		at = w.TriggeredAt.UTC().Format(time.RFC3339)
	}
	if w.TriggeredPrice.Valid {
		price = w.TriggeredPrice.Decimal.String()
	}
	return at, price
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
