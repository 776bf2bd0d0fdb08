package report

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

const (
	hashDisplayWidth = 12
	nameDisplayWidth = 48
)

// RenderTable は転送量レポートを表形式で書き出す。
// 各行の末尾に累計のフッターを付ける。
func RenderTable(w io.Writer, entries []Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tDOWN\tUP\tRATIO\tNAME")

	var accuUp, accuDown int64
	for _, e := range entries {
		hash := "-"
		name := "-"
		if e.Torrent != nil {
			hash = shorten(e.Torrent.InfoHash, hashDisplayWidth)
			name = shorten(e.Torrent.Name, nameDisplayWidth)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			hash,
			signedSize(e.DownloadedDelta),
			signedSize(e.UploadedDelta),
			formatRatio(TransferRatio(e.UploadedDelta, e.DownloadedDelta)),
			name,
		)

		accuUp += e.UploadedDelta
		accuDown += e.DownloadedDelta
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Accumulated Transfer Statistics ===")
	fmt.Fprintf(w, "Total Downloaded: %s\n", signedSize(accuDown))
	fmt.Fprintf(w, "Total Uploaded:   %s\n", signedSize(accuUp))
	fmt.Fprintf(w, "Overall Ratio:    %s\n", formatRatio(TransferRatio(accuUp, accuDown)))
	return nil
}

// signedSize は負値にも対応した2進接頭辞のサイズ表記を返す。
func signedSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// formatRatio は比率を小数1桁で整形する。無限大は∞と表記する。
func formatRatio(ratio float64) string {
	if math.IsInf(ratio, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.1f", ratio)
}

// shorten は文字列を最大長に切り詰め、省略記号を付ける。
func shorten(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	return string(runes[:maxLength-3]) + "..."
}
