// This file defines the archive-side data structures as the archive server
// returns them.

package models

import "strings"

// ArchiveMetadata describes one archive on the remote server.
type ArchiveMetadata struct {
	ArcID     string `json:"arcid"`
	Title     string `json:"title"`
	Filename  string `json:"filename"`
	Tags      string `json:"tags"`
	Extension string `json:"extension"`
	PageCount int    `json:"pagecount"`
}

// TagValues returns the values of every "namespace:value" tag in the
// comma separated tag string, in order of appearance.
func (m ArchiveMetadata) TagValues(namespace string) []string {
	var values []string
	prefix := strings.ToLower(namespace) + ":"
	for _, tag := range strings.Split(m.Tags, ",") {
		tag = strings.TrimSpace(tag)
		if len(tag) > len(prefix) && strings.EqualFold(tag[:len(prefix)], prefix) {
			values = append(values, strings.TrimSpace(tag[len(prefix):]))
		}
	}
	return values
}

// PageRef is an opaque reference to one page image, resolvable by the
// archive server client.
type PageRef = string

// SearchResult is one page of a paginated archive search.
type SearchResult struct {
	Data            []ArchiveMetadata `json:"data"`
	Draw            int               `json:"draw"`
	RecordsFiltered int               `json:"recordsFiltered"`
	RecordsTotal    int               `json:"recordsTotal"`
}

// TagStat is one entry of the server's tag statistics.
type TagStat struct {
	Namespace string `json:"namespace"`
	Text      string `json:"text"`
	Weight    int    `json:"weight"`
}
