package catalogue

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

// MetadataFileName is the per-directory index of stored pages.
const MetadataFileName = "metadata.csv"

var metadataHeader = []string{"url", "file_name"}

// EncodeRecordSet writes set as CSV with a url,file_name header.
func EncodeRecordSet(w io.Writer, set crawler.MetadataRecordSet) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(metadataHeader); err != nil {
		return fmt.Errorf("write metadata header: %w", err)
	}
	for _, rec := range set {
		if err := writer.Write([]string{rec.URL, rec.FileName}); err != nil {
			return fmt.Errorf("write metadata row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush metadata: %w", err)
	}
	return nil
}

// DecodeRecordSet reads CSV produced by EncodeRecordSet.
func DecodeRecordSet(r io.Reader) (crawler.MetadataRecordSet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(metadataHeader)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("metadata is empty")
		}
		return nil, fmt.Errorf("read metadata header: %w", err)
	}
	if header[0] != metadataHeader[0] || header[1] != metadataHeader[1] {
		return nil, fmt.Errorf("unexpected metadata header %q", header)
	}

	set := crawler.MetadataRecordSet{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return set, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read metadata row: %w", err)
		}
		set = append(set, crawler.MetadataRecord{URL: row[0], FileName: row[1]})
	}
}
