package identifier

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/agitter/manubot/internal/domain"
)

var (
	doiPattern      = regexp.MustCompile(`^10\.\d+(\.\d+)*/\S+$`)
	pmidPattern     = regexp.MustCompile(`^[0-9]+$`)
	pmcidPattern    = regexp.MustCompile(`^PMC[0-9]+$`)
	arxivNewPattern = regexp.MustCompile(`^[0-9]{4}\.[0-9]{4,5}(v[0-9]+)?$`)
	arxivOldPattern = regexp.MustCompile(`^[a-z][a-z\-]*(\.[A-Z]{2})?/[0-9]{7}(v[0-9]+)?$`)
)

// doiPrefixes are stripped (case-insensitively) before a DOI is validated.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"doi:",
}

func normalize(provider domain.Provider, value string) (string, error) {
	if value == "" {
		return "", errors.New("empty identifier value")
	}

	switch provider {
	case domain.ProviderDOI:
		return NormalizeDOI(value)
	case domain.ProviderPMID:
		if !pmidPattern.MatchString(value) {
			return "", errors.New("PMID must be numeric")
		}
		return value, nil
	case domain.ProviderPMCID:
		v := strings.ToUpper(value)
		if pmidPattern.MatchString(v) {
			v = "PMC" + v
		}
		if !pmcidPattern.MatchString(v) {
			return "", errors.New("PMCID must look like PMC1234567")
		}
		return v, nil
	case domain.ProviderArXiv:
		v := value
		if len(v) > 6 && strings.EqualFold(v[:6], "arxiv:") {
			v = v[6:]
		}
		if !arxivNewPattern.MatchString(v) && !arxivOldPattern.MatchString(v) {
			return "", errors.New("unrecognized arXiv identifier")
		}
		return v, nil
	case domain.ProviderISBN:
		return NormalizeISBN(value)
	case domain.ProviderURL:
		u, err := url.Parse(value)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		scheme := strings.ToLower(u.Scheme)
		if (scheme != "http" && scheme != "https") || u.Host == "" {
			return "", errors.New("URL must be absolute http(s)")
		}
		return u.String(), nil
	case domain.ProviderRaw:
		return value, nil
	default:
		return "", fmt.Errorf("unsupported provider %q", provider)
	}
}

// NormalizeDOI strips resolver prefixes from a DOI and lowercases it.
func NormalizeDOI(value string) (string, error) {
	v := strings.TrimSpace(value)
	lower := strings.ToLower(v)
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(lower, prefix) {
			lower = lower[len(prefix):]
			break
		}
	}
	if !doiPattern.MatchString(lower) {
		return "", errors.New("DOI must look like 10.1234/suffix")
	}
	return lower, nil
}

// NormalizeISBN strips separators, verifies the check digit and returns
// the ISBN-13 form.
func NormalizeISBN(value string) (string, error) {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r == '-' || r == ' ':
			continue
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			return "", fmt.Errorf("invalid ISBN character %q", r)
		}
	}
	digits := b.String()

	switch len(digits) {
	case 10:
		if !validISBN10(digits) {
			return "", errors.New("invalid ISBN-10 check digit")
		}
		return isbn10To13(digits), nil
	case 13:
		if strings.Contains(digits, "X") || isbn13CheckDigit(digits[:12]) != digits[12] {
			return "", errors.New("invalid ISBN-13 check digit")
		}
		return digits, nil
	default:
		return "", errors.New("ISBN must have 10 or 13 digits")
	}
}

func validISBN10(digits string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		var d int
		switch {
		case digits[i] == 'X' && i == 9:
			d = 10
		case digits[i] >= '0' && digits[i] <= '9':
			d = int(digits[i] - '0')
		default:
			return false
		}
		sum += (10 - i) * d
	}
	return sum%11 == 0
}

func isbn13CheckDigit(first12 string) byte {
	sum := 0
	for i := 0; i < 12; i++ {
		d := int(first12[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return byte('0' + (10-sum%10)%10)
}

func isbn10To13(isbn10 string) string {
	first12 := "978" + isbn10[:9]
	return first12 + string(isbn13CheckDigit(first12))
}
