package catalogue

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

func TestRecordSetRoundTrip(t *testing.T) {
	t.Parallel()

	set := crawler.MetadataRecordSet{
		{URL: "https://a.example/page", FileName: "71860c77c6745379b0d44304d66b6a13.txt"},
		{URL: "https://a.example/q?x=1,2", FileName: "b.txt"},
		{URL: "https://a.example/\"quoted\"", FileName: "c.txt"},
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeRecordSet(&buf, set))
	assert.True(t, strings.HasPrefix(buf.String(), "url,file_name\n"))

	got, err := DecodeRecordSet(&buf)
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestEncodeEmptyRecordSet(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, EncodeRecordSet(&buf, nil))
	assert.Equal(t, "url,file_name\n", buf.String())

	got, err := DecodeRecordSet(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeRecordSetErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodeRecordSet(strings.NewReader(""))
	assert.Error(t, err)

	_, err = DecodeRecordSet(strings.NewReader("link,name\nx,y\n"))
	assert.ErrorContains(t, err, "unexpected metadata header")

	_, err = DecodeRecordSet(strings.NewReader("url,file_name\nonly-one-field\n"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	base := crawler.MetadataRecordSet{{URL: "a", FileName: "1"}, {URL: "b", FileName: "2"}}
	updates := crawler.MetadataRecordSet{{URL: "b", FileName: "3"}, {URL: "c", FileName: "4"}}

	got := Merge(base, updates)
	assert.Equal(t, crawler.MetadataRecordSet{
		{URL: "a", FileName: "1"},
		{URL: "b", FileName: "3"},
		{URL: "c", FileName: "4"},
	}, got)
	assert.Equal(t, "2", base[1].FileName, "base must not be modified")
}
