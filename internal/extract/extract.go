// Package extract scrapes index constituents and reads the Nasdaq screener
// export to build symbol lists.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"trading-toolkit/internal/logger"
)

const (
	SP500URL     = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"
	Nasdaq100URL = "https://en.wikipedia.org/wiki/Nasdaq-100"

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var ErrTableNotFound = errors.New("table not found")

// Change is one row of the S&P 500 changes table. Either side may be empty.
type Change struct {
	Date    time.Time
	Added   string
	Removed string
}

type SP500Page struct {
	Symbols []string
	Changes []Change
}

type Scraper struct {
	timeout time.Duration
	cache   *Cache
}

func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{timeout: timeout}
}

// WithCache serves repeated scrapes of the same page from c.
func (s *Scraper) WithCache(c *Cache) *Scraper {
	s.cache = c
	return s
}

func (s *Scraper) cached(ctx context.Context, key string, v any) bool {
	if s.cache == nil || !s.cache.Get(key, v) {
		return false
	}
	logger.Debug(ctx, "Using cached scrape", "key", key)
	return true
}

func (s *Scraper) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(key, v); err != nil {
		logger.Warn(ctx, "Failed to cache scrape", "key", key, "error", err)
	}
}

// tableHandler receives the rows of a matched table that have td cells.
type tableHandler func(cells *goquery.Selection)

func (s *Scraper) visit(ctx context.Context, pageURL string, tables map[string]tableHandler) error {
	c := colly.NewCollector(colly.MaxDepth(1))
	c.Context = ctx
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", userAgent)
	})

	found := make(map[string]bool, len(tables))
	for id, handle := range tables {
		c.OnHTML("table#"+id, func(e *colly.HTMLElement) {
			found[id] = true
			e.DOM.Find("tr").Each(func(_ int, tr *goquery.Selection) {
				if cells := tr.Find("td"); cells.Length() > 0 {
					handle(cells)
				}
			})
		})
	}

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Scraping error", err, "url", r.Request.URL.String(), "status", r.StatusCode)
	})

	if err := c.Visit(pageURL); err != nil {
		return fmt.Errorf("visit %s: %w", pageURL, err)
	}
	c.Wait()

	for id := range tables {
		if !found[id] {
			return fmt.Errorf("%w: #%s on %s", ErrTableNotFound, id, pageURL)
		}
	}
	return nil
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.TrimSpace(cells.Eq(i).Text())
}

// SP500 scrapes the current constituents and the history of changes.
func (s *Scraper) SP500(ctx context.Context, pageURL string) (*SP500Page, error) {
	page := &SP500Page{}
	key := "sp500 " + pageURL
	if s.cached(ctx, key, page) {
		return page, nil
	}
	err := s.visit(ctx, pageURL, map[string]tableHandler{
		"constituents": func(cells *goquery.Selection) {
			if sym := cellText(cells, 0); sym != "" {
				page.Symbols = append(page.Symbols, sym)
			}
		},
		"changes": func(cells *goquery.Selection) {
			if cells.Length() < 4 {
				return
			}
			raw := cellText(cells, 0)
			date, err := parseChangeDate(raw)
			if err != nil {
				logger.Warn(ctx, "Skipping change with unreadable date", "date", raw)
				return
			}
			page.Changes = append(page.Changes, Change{
				Date:    date,
				Added:   cellText(cells, 1),
				Removed: cellText(cells, 3),
			})
		},
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "S&P 500 extracted", "symbols", len(page.Symbols), "changes", len(page.Changes))
	s.store(ctx, key, page)
	return page, nil
}

// Nasdaq100 scrapes the ticker column of the constituents table.
func (s *Scraper) Nasdaq100(ctx context.Context, pageURL string) ([]string, error) {
	var symbols []string
	key := "nasdaq100 " + pageURL
	if s.cached(ctx, key, &symbols) {
		return symbols, nil
	}
	err := s.visit(ctx, pageURL, map[string]tableHandler{
		"constituents": func(cells *goquery.Selection) {
			if cells.Length() < 2 {
				return
			}
			if sym := cellText(cells, 1); sym != "" {
				symbols = append(symbols, sym)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Nasdaq-100 extracted", "symbols", len(symbols))
	s.store(ctx, key, symbols)
	return symbols, nil
}

var changeDateLayouts = []string{"January 2, 2006", "Jan 2, 2006", time.DateOnly}

func parseChangeDate(s string) (time.Time, error) {
	for _, layout := range changeDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// SP500At rewinds the current constituents through every change dated
// after at and returns the sorted membership as of at.
func SP500At(current []string, changes []Change, at time.Time) []string {
	set := make(map[string]bool, len(current))
	for _, s := range current {
		set[s] = true
	}
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)

	// newest first
	ordered := append([]Change(nil), changes...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.After(ordered[j].Date) })
	for _, c := range ordered {
		if !day.Before(c.Date) {
			continue
		}
		if c.Added != "" {
			delete(set, c.Added)
		}
		if c.Removed != "" {
			set[c.Removed] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
