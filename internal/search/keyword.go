package search

import (
	"strings"
)

// maxTSQueryTerms caps the number of terms fed into to_tsquery.
const maxTSQueryTerms = 6

// keywordRetrieveLimit caps the candidate set pulled from the full-text
// index before reranking.
const keywordRetrieveLimit = 200

// BuildTSQuery converts a comma-separated keyword list into to_tsquery
// syntax. Internal spaces become AND and each keyword gets a :* prefix
// matcher ("http client" -> "http & client:*"); keywords are joined with
// OR. At most maxTSQueryTerms keywords are used.
func BuildTSQuery(keywords string) string {
	parts := strings.Split(keywords, ",")

	terms := make([]string, 0, maxTSQueryTerms)
	for _, part := range parts {
		if len(terms) == maxTSQueryTerms {
			break
		}
		term := strings.ToLower(strings.TrimSpace(part))
		if term == "" {
			continue
		}
		term = strings.ReplaceAll(term, " ", " & ")
		terms = append(terms, term+":*")
	}

	return strings.Join(terms, " | ")
}
