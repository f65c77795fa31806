package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sp500HTML = `<html><body>
<table id="constituents">
<tr><th>Symbol</th><th>Security</th></tr>
<tr><td>AAPL</td><td>Apple Inc.</td></tr>
<tr><td> MSFT </td><td>Microsoft</td></tr>
<tr><td>XYZ</td><td>Block</td></tr>
</table>
<table id="changes">
<tr><th>Date</th><th colspan="2">Added</th><th colspan="2">Removed</th><th>Reason</th></tr>
<tr><td>July 23, 2025</td><td>XYZ</td><td>Block</td><td>HES</td><td>Hess</td><td>acquired</td></tr>
<tr><td>March 24, 2025</td><td></td><td></td><td>OLD</td><td>Old Co</td><td>dropped</td></tr>
<tr><td>sometime</td><td>BAD</td><td></td><td></td><td></td><td></td></tr>
</table>
</body></html>`

const nasdaqHTML = `<html><body>
<table id="constituents">
<tr><th>Company</th><th>Ticker</th></tr>
<tr><td>Adobe Inc.</td><td>ADBE</td></tr>
<tr><td>Amazon</td><td>AMZN</td></tr>
</table>
</body></html>`

func serve(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSP500(t *testing.T) {
	srv := serve(t, map[string]string{"/sp500": sp500HTML})
	page, err := NewScraper(5*time.Second).SP500(context.Background(), srv.URL+"/sp500")
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT", "XYZ"}, page.Symbols)
	require.Len(t, page.Changes, 2)
	assert.Equal(t, Change{Date: time.Date(2025, 7, 23, 0, 0, 0, 0, time.UTC), Added: "XYZ", Removed: "HES"}, page.Changes[0])
	assert.Equal(t, "", page.Changes[1].Added)
	assert.Equal(t, "OLD", page.Changes[1].Removed)
}

func TestNasdaq100(t *testing.T) {
	srv := serve(t, map[string]string{"/ndx": nasdaqHTML})
	symbols, err := NewScraper(5*time.Second).Nasdaq100(context.Background(), srv.URL+"/ndx")
	require.NoError(t, err)
	assert.Equal(t, []string{"ADBE", "AMZN"}, symbols)
}

func TestMissingTable(t *testing.T) {
	srv := serve(t, map[string]string{"/ndx": "<html><body><p>nothing</p></body></html>"})
	_, err := NewScraper(5*time.Second).Nasdaq100(context.Background(), srv.URL+"/ndx")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestHTTPError(t *testing.T) {
	srv := serve(t, nil)
	_, err := NewScraper(5*time.Second).SP500(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestSP500At(t *testing.T) {
	current := []string{"AAPL", "MSFT", "XYZ"}
	changes := []Change{
		{Date: time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC), Removed: "OLD"},
		{Date: time.Date(2025, 7, 23, 0, 0, 0, 0, time.UTC), Added: "XYZ", Removed: "HES"},
	}

	tests := []struct {
		name string
		at   time.Time
		want []string
	}{
		{"today", time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), []string{"AAPL", "MSFT", "XYZ"}},
		{"change day counts as after", time.Date(2025, 7, 23, 15, 0, 0, 0, time.UTC), []string{"AAPL", "MSFT", "XYZ"}},
		{"before addition", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), []string{"AAPL", "HES", "MSFT"}},
		{"before both", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), []string{"AAPL", "HES", "MSFT", "OLD"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SP500At(current, changes, tt.at))
		})
	}
}

func TestCompanySymbols(t *testing.T) {
	dir := t.TempDir()
	csv := "Symbol,Name,Last Sale\nAAPL,Apple,$190\nBRK^A,Berkshire,$1\nBF/B,Brown,$2\nmsft,lower,$3\nTSLA,Tesla,$200\n"
	path := filepath.Join(dir, "nasdaq_screener_1700000000.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	found, err := FindScreenerFile(dir)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	symbols, err := CompanySymbols(found)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "TSLA"}, symbols)

	_, err = FindScreenerFile(t.TempDir())
	assert.ErrorIs(t, err, ErrScreenerNotFound)
}

func TestFormatWrapsAtWidth(t *testing.T) {
	symbols := make([]string, 40)
	for i := range symbols {
		symbols[i] = "SYM" + string(rune('A'+i%26))
	}
	out := Format("SP500_SYMBOLS", symbols, 80)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Equal(t, "SP500_SYMBOLS = [", lines[0])
	assert.Equal(t, "]", lines[len(lines)-1])
	for _, l := range lines[1 : len(lines)-1] {
		assert.LessOrEqual(t, len(l), 84)
		assert.True(t, strings.HasPrefix(l, "    '"))
	}
	assert.Contains(t, out, "'SYMA', 'SYMB'")
	assert.True(t, strings.HasSuffix(lines[len(lines)-2], "'SYMN'"))
}

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{"aa bb", "cc"}, wrap([]string{"aa", "bb", "cc"}, 5))
	assert.Equal(t, []string{"toolongword", "a"}, wrap([]string{"toolongword", "a"}, 5))
	assert.Nil(t, wrap(nil, 80))
}

func TestFormatChanges(t *testing.T) {
	out := FormatChanges([]Change{{Date: time.Date(2025, 7, 23, 0, 0, 0, 0, time.UTC), Added: "XYZ", Removed: "HES"}})
	assert.Equal(t, "2025-07-23 +XYZ -HES\n", out)
}
