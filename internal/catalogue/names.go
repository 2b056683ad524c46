package catalogue

import (
	"crypto/md5" // #nosec G501 -- file naming, not security.
	"encoding/hex"
	"strings"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage"
)

// DeriveFileName names a page's stored text after the md5 of the URL's last
// path segment. Pages whose URLs end in the same segment share a file, so a
// re-crawl overwrites in place.
func DeriveFileName(rawURL string) string {
	trimmed := strings.ReplaceAll(rawURL, "https://", "")
	trimmed = strings.ReplaceAll(trimmed, "http://", "")
	trimmed = strings.TrimRight(trimmed, "/")
	segment := trimmed[strings.LastIndex(trimmed, "/")+1:]
	sum := md5.Sum([]byte(segment)) // #nosec G401
	return hex.EncodeToString(sum[:]) + ".txt"
}

// TargetDirectory is {base}/{jurisdiction}/{category}, plus /{siteName} when
// the CrawlSpec names its site.
func TargetDirectory(base string, spec crawler.CrawlSpec) string {
	return storage.Join(base, spec.Jurisdiction, spec.Category, spec.SiteName)
}
