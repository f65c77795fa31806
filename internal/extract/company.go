package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

var ErrScreenerNotFound = errors.New("nasdaq screener export not found")

var plainSymbol = regexp.MustCompile(`^[A-Z]+$`)

type screenerRow struct {
	Symbol string `csv:"Symbol"`
}

// FindScreenerFile returns the first nasdaq_screener*.csv in dir.
func FindScreenerFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "nasdaq_screener*.csv"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrScreenerNotFound, dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// DefaultScreenerDir is ~/Downloads, where the screener export usually lands.
func DefaultScreenerDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}

// CompanySymbols reads the Symbol column of a screener export, keeping
// plain uppercase tickers only (no class suffixes like BRK^A or BF/B).
func CompanySymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []screenerRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("read screener %s: %w", path, err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if sym := strings.TrimSpace(r.Symbol); plainSymbol.MatchString(sym) {
			out = append(out, sym)
		}
	}
	return out, nil
}

// Format renders symbols as a quoted list assigned to name, wrapped at width
// columns with a four space indent.
func Format(name string, symbols []string, width int) string {
	var sb strings.Builder
	sb.WriteString(name + " = [\n")
	for _, line := range wrap(quoteAll(symbols), width) {
		sb.WriteString("    " + line + "\n")
	}
	sb.WriteString("]\n")
	return sb.String()
}

func quoteAll(symbols []string) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = "'" + s + "'"
		if i < len(symbols)-1 {
			out[i] += ","
		}
	}
	return out
}

// wrap greedily packs words into lines no longer than width. A word longer
// than width gets a line of its own.
func wrap(words []string, width int) []string {
	var lines []string
	cur := ""
	for _, w := range words {
		switch {
		case cur == "":
			cur = w
		case len(cur)+1+len(w) <= width:
			cur += " " + w
		default:
			lines = append(lines, cur)
			cur = w
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// FormatChanges lists changes one per line as "date +added -removed".
func FormatChanges(changes []Change) string {
	var sb strings.Builder
	for _, c := range changes {
		sb.WriteString(c.Date.Format("2006-01-02"))
		if c.Added != "" {
			sb.WriteString(" +" + c.Added)
		}
		if c.Removed != "" {
			sb.WriteString(" -" + c.Removed)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
