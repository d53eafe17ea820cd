// Package news merges RSS/Atom feeds into a short, deduplicated crypto headline list.
package news

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"coinwatch/internal/errs"
)

const (
	DefaultPerFeedLimit = 15
	DefaultFinalLimit   = 8

	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "Mozilla/5.0 (TelegramBot; +https://t.me/)"
)

// DefaultKeywords select crypto headlines out of the secondary (general) feed.
var DefaultKeywords = []string{
	"crypto", "cryptocurrency", "bitcoin", "btc", "ethereum", "eth", "solana", "sol",
	"xrp", "ripple", "binance", "bnb", "doge", "dogecoin", "stablecoin", "usdt",
	"tether", "usdc", "blockchain", "web3", "defi", "etf", "mining",
}

// Item is one headline.
type Item struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
}

// Key identifies an item across feeds: the trimmed link, else the lower-cased title.
func (i Item) Key() string {
	if link := strings.TrimSpace(i.Link); link != "" {
		return link
	}
	return strings.ToLower(strings.TrimSpace(i.Title))
}

// Feed is a labelled source tried URL by URL until one parses.
type Feed struct {
	Label string
	URLs  []string
}

// Options parameterise the aggregator.
type Options struct {
	Primary   Feed
	Secondary Feed
	Keywords  []string
	Timeout   time.Duration
	UserAgent string
}

// Aggregator fetches the primary (topic-scoped) and secondary (general) feeds.
type Aggregator struct {
	opts     Options
	keywords []string
	logger   zerolog.Logger
	client   *resty.Client
	parser   *gofeed.Parser
}

// New constructs an Aggregator.
func New(opts Options, logger zerolog.Logger) *Aggregator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	keywords := opts.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}

	return &Aggregator{
		opts:     opts,
		keywords: lowered,
		logger:   logger.With().Str("component", "news").Logger(),
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", ua).
			SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"),
		parser: gofeed.NewParser(),
	}
}

// CryptoNews returns at most finalLimit headlines, newest first.
// A primary feed failure is returned as errs.ErrTransient; the secondary feed is optional.
func (a *Aggregator) CryptoNews(ctx context.Context, perFeedLimit, finalLimit int) ([]Item, error) {
	if perFeedLimit <= 0 {
		perFeedLimit = DefaultPerFeedLimit
	}
	if finalLimit <= 0 {
		finalLimit = DefaultFinalLimit
	}

	var primary, secondary []Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := a.fetchFeed(gctx, a.opts.Primary)
		if err != nil {
			return errs.Transient("news "+a.opts.Primary.Label, err)
		}
		primary = mostRecent(items, perFeedLimit)
		return nil
	})
	if len(a.opts.Secondary.URLs) > 0 {
		g.Go(func() error {
			items, err := a.fetchFeed(gctx, a.opts.Secondary)
			if err != nil {
				a.logger.Warn().Err(err).Str("feed", a.opts.Secondary.Label).Msg("secondary feed unavailable")
				return nil
			}
			secondary = filterKeywords(mostRecent(items, perFeedLimit), a.keywords)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]Item, 0, len(primary)+len(secondary))
	merged = append(merged, primary...)
	merged = append(merged, secondary...)
	return Rank(merged, finalLimit), nil
}

// fetchFeed tries each URL of feed in order and returns the first parsed result.
func (a *Aggregator) fetchFeed(ctx context.Context, feed Feed) ([]Item, error) {
	if len(feed.URLs) == 0 {
		return nil, errors.New("no feed url configured")
	}

	var lastErr error
	for _, url := range feed.URLs {
		parsed, err := a.fetchURL(ctx, url)
		if err != nil {
			lastErr = err
			a.logger.Debug().Err(err).Str("url", url).Msg("feed url failed")
			continue
		}
		items := make([]Item, 0, len(parsed.Items))
		for _, entry := range parsed.Items {
			if entry == nil {
				continue
			}
			items = append(items, Item{
				Title:       strings.TrimSpace(entry.Title),
				Link:        strings.TrimSpace(entry.Link),
				PublishedAt: entryTime(entry),
				Source:      feed.Label,
			})
		}
		return items, nil
	}
	return nil, lastErr
}

func (a *Aggregator) fetchURL(ctx context.Context, url string) (*gofeed.Feed, error) {
	resp, err := a.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: http status %d", url, resp.StatusCode())
	}
	parsed, err := a.parser.ParseString(string(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return parsed, nil
}

func entryTime(entry *gofeed.Item) time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		return entry.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}

// mostRecent keeps the limit newest items; undated items sort last.
func mostRecent(items []Item, limit int) []Item {
	sortNewestFirst(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func filterKeywords(items []Item, keywords []string) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		title := strings.ToLower(item.Title)
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// Rank sorts newest first (stable), drops duplicates and keyless items, then truncates.
func Rank(items []Item, limit int) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sortNewestFirst(sorted)

	seen := make(map[string]struct{}, len(sorted))
	out := make([]Item, 0, min(limit, len(sorted)))
	for _, item := range sorted {
		key := item.Key()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}

func sortNewestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
}
