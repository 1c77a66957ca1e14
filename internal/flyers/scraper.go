// Package flyers discovers the current flyer PDFs published on a retailer's index page.
package flyers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/spherical/flyer-extractor/internal/config"
	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/observability"
)

const (
	defaultName             = "Volantino generico"
	defaultValidity         = "Data non trovata"
	fallbackValidity        = "Data non disponibile (Fallback)"
	defaultTimeout          = 15 * time.Second
	defaultScraperUserAgent = "Mozilla/5.0"
)

var pdfLink = regexp.MustCompile(`(?i)/resources/.*\.pdf$`)

// Config configures a Scraper.
type Config struct {
	IndexURL  string
	BaseURL   string // prefix for relative links
	UserAgent string
	Timeout   time.Duration
}

// ConfigFrom maps the scraper settings onto a Config.
func ConfigFrom(sc config.ScraperConfig) Config {
	return Config{IndexURL: sc.IndexURL, BaseURL: sc.BaseURL, UserAgent: sc.UserAgent, Timeout: sc.Timeout}
}

// Scraper reads flyer cards from an index page.
type Scraper struct {
	cfg       Config
	collector *colly.Collector
	logger    *observability.Logger
}

// NewScraper creates a scraper for cfg.IndexURL.
func NewScraper(cfg Config, logger *observability.Logger) *Scraper {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultScraperUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = observability.Nop()
	}

	collector := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	collector.SetRequestTimeout(cfg.Timeout)
	collector.AllowURLRevisit = true

	return &Scraper{
		cfg:       cfg,
		collector: collector,
		logger:    logger.WithOperation("scrape_flyers"),
	}
}

// Collector exposes the underlying collector, e.g. to swap its transport.
func (s *Scraper) Collector() *colly.Collector {
	return s.collector
}

// Scrape visits the index page and returns the flyers found on it. Cards
// (div.flyer-card) are preferred; without them every link to /resources/*.pdf
// becomes a flyer. The returned slice is never nil.
func (s *Scraper) Scrape(ctx context.Context) ([]domain.Flyer, error) {
	if err := ctx.Err(); err != nil {
		return []domain.Flyer{}, err
	}

	var (
		mu       sync.Mutex
		cards    []domain.Flyer
		links    []domain.Flyer
		sawCards bool
	)

	c := s.collector.Clone()

	c.OnHTML("div.flyer-card", func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		sawCards = true

		href, ok := e.DOM.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}

		validity := strings.TrimSpace(e.DOM.Find("p.flyer-validity").First().Text())
		if validity == "" {
			validity = strings.TrimSpace(e.DOM.Find("p").First().Text())
		}
		if validity == "" {
			validity = defaultValidity
		}

		name := strings.TrimSpace(e.DOM.Find("h4").First().Text())
		if name == "" {
			name = strings.TrimSpace(e.DOM.Find("h3").First().Text())
		}
		if name == "" {
			name = defaultName
		}

		cards = append(cards, domain.Flyer{Name: name, URL: s.absolute(href), Validity: validity})
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if !pdfLink.MatchString(href) {
			return
		}
		url := s.absolute(href)
		parts := strings.Split(url, "/")

		mu.Lock()
		links = append(links, domain.Flyer{Name: parts[len(parts)-1], URL: url, Validity: fallbackValidity})
		mu.Unlock()
	})

	if err := c.Visit(s.cfg.IndexURL); err != nil {
		s.logger.Error().Err(err).Str("url", s.cfg.IndexURL).Msg("flyer index not reachable")
		return []domain.Flyer{}, domain.SourceUnavailableError(fmt.Sprintf("scrape %s", s.cfg.IndexURL), err)
	}
	c.Wait()

	if sawCards {
		s.logger.Info().Int("flyers", len(cards)).Msg("flyers found")
		if cards == nil {
			cards = []domain.Flyer{}
		}
		return cards, nil
	}

	s.logger.Warn().Int("links", len(links)).Msg("no flyer cards, falling back to PDF links")
	if links == nil {
		links = []domain.Flyer{}
	}
	return links, nil
}

func (s *Scraper) absolute(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(href, "/")
}
