// package formatter renders playlist data for the terminal (table, CSV, Markdown, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/shared"
)

// Formats accepted by [Render].
const (
	FormatTable    = "table"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// FormatDuration renders milliseconds as m:ss (or h:mm:ss); "-" when unknown.
func FormatDuration(ms *int64) string {
	if ms == nil || *ms < 0 {
		return "-"
	}

	d := time.Duration(*ms) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatSeconds renders a playlist length such as "1h4m"; "-" when unknown.
func FormatSeconds(sec *int) string {
	if sec == nil || *sec < 0 {
		return "-"
	}
	d := time.Duration(*sec) * time.Second
	if d < time.Minute {
		return d.String()
	}
	return strings.TrimSuffix(d.Truncate(time.Minute).String(), "0s")
}

// Render formats tracks of the titled playlist in the requested format.
func Render(format, title string, tracks []models.Track) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatTable:
		return []byte(TracksTable(tracks) + "\n"), nil
	case FormatCSV:
		return ExportToCSV(tracks)
	case FormatMarkdown, "md":
		return ExportToMarkdown(title, tracks)
	case FormatJSON:
		return ExportToJSON(tracks)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// ExportToCSV converts tracks to CSV with columns: ID, Title, Artist, Album, Duration
func ExportToCSV(tracks []models.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Title", "Artist", "Album", "Duration"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{track.ID, track.Title, track.Artist, track.Album, FormatDuration(track.DurationMS)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts tracks to a numbered Markdown list under title.
func ExportToMarkdown(title string, tracks []models.Track) ([]byte, error) {
	var buf bytes.Buffer

	if title == "" {
		title = "Playlist"
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(tracks))

	for i, track := range tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.Artist, track.Title, albumPart, FormatDuration(track.DurationMS))
	}

	return buf.Bytes(), nil
}

// ExportToJSON renders v as indented JSON.
func ExportToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// TracksTable renders tracks as a rounded table.
func TracksTable(tracks []models.Track) string {
	rows := make([][]string, 0, len(tracks))
	for i, t := range tracks {
		rows = append(rows, []string{humanize.Comma(int64(i + 1)), t.Title, t.Artist, t.Album, FormatDuration(t.DurationMS), t.ID})
	}
	return renderTable(
		[]string{"#", "Title", "Artist", "Album", "Length", "Rating Key"},
		rows,
		[]text.Align{text.AlignRight, text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignRight},
	)
}

// PlaylistsTable renders playlist summaries as a rounded table.
func PlaylistsTable(playlists []models.PlaylistSummary) string {
	rows := make([][]string, 0, len(playlists))
	for _, p := range playlists {
		count := "-"
		if p.LeafCount != nil {
			count = humanize.Comma(int64(*p.LeafCount))
		}
		rows = append(rows, []string{p.ID, p.Title, p.PlaylistType, count, FormatSeconds(p.DurationSec)})
	}
	return renderTable(
		[]string{"ID", "Title", "Type", "Items", "Length"},
		rows,
		[]text.Align{text.AlignRight, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignRight},
	)
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
