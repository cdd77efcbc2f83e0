package hatena

import "time"

// Atom feed documents returned by the AtomPub collection endpoint. Namespaced
// elements (app:control/app:draft) match by local name.
type atomFeed struct {
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
	Href string `xml:"href,attr"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Links      []atomLink     `xml:"link"`
	Published  time.Time      `xml:"published"`
	Updated    time.Time      `xml:"updated"`
	Categories []atomCategory `xml:"category"`
	Content    string         `xml:"content"`
	Control    atomControl    `xml:"control"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomControl struct {
	Draft string `xml:"draft"`
}

func (e *atomEntry) link(rel string) string {
	for _, l := range e.Links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

func (e *atomEntry) isDraft() bool {
	return e.Control.Draft == "yes"
}
