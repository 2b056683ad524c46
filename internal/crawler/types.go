// Package crawler defines core types shared across subsystems.
package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CrawlSpec is one site's crawl configuration. It is built once by the input
// loader and never mutated afterwards.
type CrawlSpec struct {
	URL            string
	AllowedDomains []string
	Jurisdiction   string
	Category       string
	SiteName       string
}

// NewCrawlSpec normalizes rawURL (prepending http:// when no scheme is present)
// and derives the allowed domain from its host.
func NewCrawlSpec(rawURL, jurisdiction, category, siteName string) (CrawlSpec, error) {
	seed := strings.TrimSpace(rawURL)
	if seed == "" {
		return CrawlSpec{}, fmt.Errorf("seed url is empty")
	}
	if !strings.HasPrefix(seed, "http://") && !strings.HasPrefix(seed, "https://") {
		seed = "http://" + seed
	}
	domain, err := ExtractDomain(seed)
	if err != nil {
		return CrawlSpec{}, err
	}
	return CrawlSpec{
		URL:            seed,
		AllowedDomains: []string{domain},
		Jurisdiction:   strings.TrimSpace(jurisdiction),
		Category:       strings.TrimSpace(category),
		SiteName:       strings.TrimSpace(siteName),
	}, nil
}

// ExtractDomain returns the host portion of rawURL.
func ExtractDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Host != "" {
		return u.Host, nil
	}
	host, _, _ := strings.Cut(u.Path, "/")
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return host, nil
}

// Page is one fetched document as returned by the crawl engine.
type Page struct {
	URL         string
	Content     []byte
	ContentType string
	Title       string
}

// CrawlResult maps fetched URLs to content for a single CrawlSpec. Pages keep
// the order the engine produced them in.
type CrawlResult struct {
	Spec  CrawlSpec
	Pages []Page
}

// Len reports how many pages were fetched.
func (r CrawlResult) Len() int {
	return len(r.Pages)
}

// EngineRequest is the contract handed to the crawl engine for one site.
type EngineRequest struct {
	Seeds          []string
	AllowedDomains []string
	Recurse        bool
	MaxPages       int
	DownloadPDF    bool
}

// ContentRecord is the extracted text of one page plus its identity.
type ContentRecord struct {
	SourceURL    string
	FileName     string
	Jurisdiction string
	Category     string
	Text         []byte
}

// ParsedObject is the canonical record consumed by downstream indexing.
// Every field is optional; zero values mean unset.
type ParsedObject struct {
	FileURL      string    `json:"file_url"`
	Jurisdiction string    `json:"jurisdiction"`
	SourceURL    string    `json:"source_url"`
	Category     string    `json:"category"`
	Subcategory  string    `json:"subcategory"`
	IndexedAt    time.Time `json:"date"`
	Hash         string    `json:"hash"`
	Title        string    `json:"title"`
}

func (o ParsedObject) String() string {
	return fmt.Sprintf("ParsedObject(%s, %s, %s, %s, %s, %s, %s, %s)",
		o.FileURL, o.Jurisdiction, o.SourceURL, o.Category, o.Subcategory,
		o.IndexedAt.Format(time.RFC3339), o.Hash, o.Title)
}

// MetadataRecord is one row of metadata.csv.
type MetadataRecord struct {
	URL      string
	FileName string
}

// MetadataRecordSet is the ordered metadata for one catalogued site.
type MetadataRecordSet []MetadataRecord

// RunStats is persisted once per ingestion run.
type RunStats struct {
	RunNumber    int64     `json:"run_number"`
	PagesCrawled int       `json:"pages_crawled"`
	LawsCrawled  int       `json:"laws_crawled"`
	SitesCrawled int       `json:"sites_crawled"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
