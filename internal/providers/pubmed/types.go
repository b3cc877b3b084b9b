package pubmed

// ArticleSet is the response of the efetch.fcgi endpoint. The root element
// is not checked: NCBI answers unknown PMIDs with an eFetchResult error
// document, which decodes as an empty set.
type ArticleSet struct {
	Articles []Article `xml:"PubmedArticle"`
}

// Article is one PubMed record.
type Article struct {
	MedlineCitation MedlineCitation `xml:"MedlineCitation"`
	PubmedData      PubmedData      `xml:"PubmedData"`
}

// MedlineCitation contains the core bibliographic information.
type MedlineCitation struct {
	PMID    string      `xml:"PMID"`
	Article ArticleInfo `xml:"Article"`
}

// ArticleInfo contains the article metadata.
type ArticleInfo struct {
	Journal      Journal       `xml:"Journal"`
	ArticleTitle string        `xml:"ArticleTitle"`
	Pagination   *Pagination   `xml:"Pagination,omitempty"`
	ELocationID  []ELocationID `xml:"ELocationID,omitempty"`
	Abstract     *Abstract     `xml:"Abstract,omitempty"`
	AuthorList   *AuthorList   `xml:"AuthorList,omitempty"`
	Language     []string      `xml:"Language,omitempty"`
}

// Journal contains journal information.
type Journal struct {
	ISSN            string       `xml:"ISSN,omitempty"`
	JournalIssue    JournalIssue `xml:"JournalIssue"`
	Title           string       `xml:"Title,omitempty"`
	ISOAbbreviation string       `xml:"ISOAbbreviation,omitempty"`
}

// JournalIssue contains the volume, issue, and publication date.
type JournalIssue struct {
	Volume  string  `xml:"Volume,omitempty"`
	Issue   string  `xml:"Issue,omitempty"`
	PubDate PubDate `xml:"PubDate"`
}

// PubDate is the publication date, either split into parts or as a
// free-form MedlineDate such as "2020 Jan-Feb".
type PubDate struct {
	Year        string `xml:"Year,omitempty"`
	Month       string `xml:"Month,omitempty"`
	Day         string `xml:"Day,omitempty"`
	MedlineDate string `xml:"MedlineDate,omitempty"`
}

// Pagination contains page information.
type Pagination struct {
	StartPage  string `xml:"StartPage,omitempty"`
	EndPage    string `xml:"EndPage,omitempty"`
	MedlinePgn string `xml:"MedlinePgn,omitempty"`
}

// ELocationID is an electronic location identifier (DOI or PII).
type ELocationID struct {
	EIdType string `xml:"EIdType,attr"`
	Valid   string `xml:"ValidYN,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// Abstract contains the article abstract, which may have labeled sections.
type Abstract struct {
	AbstractTexts []AbstractText `xml:"AbstractText"`
}

// AbstractText is a section of the abstract.
type AbstractText struct {
	Label string `xml:"Label,attr,omitempty"`
	Value string `xml:",chardata"`
}

// AuthorList contains the list of authors.
type AuthorList struct {
	Authors []Author `xml:"Author"`
}

// Author is a person or a collective.
type Author struct {
	LastName       string `xml:"LastName,omitempty"`
	ForeName       string `xml:"ForeName,omitempty"`
	Initials       string `xml:"Initials,omitempty"`
	Suffix         string `xml:"Suffix,omitempty"`
	CollectiveName string `xml:"CollectiveName,omitempty"`
}

// PubmedData contains the article identifiers.
type PubmedData struct {
	ArticleIDList ArticleIDList `xml:"ArticleIdList"`
}

// ArticleIDList contains various identifiers for the article.
type ArticleIDList struct {
	ArticleIDs []ArticleID `xml:"ArticleId"`
}

// ArticleID is an article identifier (pubmed, doi, pmc, ...).
type ArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}
