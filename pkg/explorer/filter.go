package explorer

import (
	"github.com/sahilm/fuzzy"
)

// Item is one child of the current folder.
type Item struct {
	Name     string
	IsFolder bool
	Matched  []int // indexes of matched runes, for highlighting
}

type items []Item

func (it items) String(i int) string { return it[i].Name }
func (it items) Len() int            { return len(it) }

// Filter fuzzy-matches query against the folders and files of the current
// path, best match first. An empty query lists everything, folders first.
func (c *Controller) Filter(query string) []Item {
	entry, ok := c.store.Get(c.Path())
	if !ok {
		return nil
	}

	all := make(items, 0, len(entry.Folders)+len(entry.Files))
	for _, f := range entry.Folders {
		all = append(all, Item{Name: f, IsFolder: true})
	}
	for _, f := range entry.Files {
		all = append(all, Item{Name: f.Name})
	}
	if query == "" {
		return all
	}

	matches := fuzzy.FindFrom(query, all)
	out := make([]Item, len(matches))
	for i, m := range matches {
		it := all[m.Index]
		it.Matched = m.MatchedIndexes
		out[i] = it
	}
	return out
}
