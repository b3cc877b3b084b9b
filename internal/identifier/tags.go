package identifier

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agitter/manubot/internal/domain"
)

// TagPrefix marks a citation that refers to an entry of a tags file.
const TagPrefix = "tag"

// Tags maps short citation tags to the citation strings they stand for,
// as read from a citation-tags.tsv file.
type Tags map[string]string

// LoadTags reads a tab-separated tags file with a "tag" and "citation"
// header. A missing file yields an empty Tags.
func LoadTags(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Tags{}, nil
		}
		return nil, fmt.Errorf("open tags file: %w", err)
	}
	defer f.Close()

	tags, err := ReadTags(f)
	if err != nil {
		return nil, fmt.Errorf("read tags file %s: %w", path, err)
	}
	return tags, nil
}

// ReadTags parses tags from r. The first record is a header; blank lines
// are skipped and extra columns ignored.
func ReadTags(r io.Reader) (Tags, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return Tags{}, nil
		}
		return nil, err
	}

	tags := Tags{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected tag<TAB>citation", line)
		}
		tag, citation := strings.TrimSpace(record[0]), strings.TrimSpace(record[1])
		if tag == "" || citation == "" {
			return nil, fmt.Errorf("line %d: expected tag<TAB>citation", line)
		}
		if _, dup := tags[tag]; dup {
			return nil, fmt.Errorf("line %d: duplicate tag %q", line, tag)
		}
		tags[tag] = citation
	}
	return tags, nil
}

// Expand replaces a "tag:name" citation with the citation it stands for.
// Other citations are returned unchanged.
func (t Tags) Expand(raw string) (string, error) {
	prefix, name, found := strings.Cut(strings.TrimSpace(raw), Separator)
	if !found || !strings.EqualFold(prefix, TagPrefix) {
		return raw, nil
	}
	citation, ok := t[name]
	if !ok {
		return "", domain.NewIdentifierError(raw, "tag not defined in citation tags")
	}
	return citation, nil
}
