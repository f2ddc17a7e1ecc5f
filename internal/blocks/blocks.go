// Package blocks splits rendered article HTML into a section outline and
// the content blocks under each section.
package blocks

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"wiki_harvester/internal/models"
)

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reHeading    = regexp.MustCompile(`^h([1-6])$`)
	reBlockOpen  = regexp.MustCompile(`<(div|p|br|li|dd|dt|td|th|tr|h[1-6])([\s>/][^>]*)?>`)
	reBlockClose = regexp.MustCompile(`</(div|p|li|dd|dt|td|th|tr|h[1-6])>`)
)

// noise is removed before segmentation.
const noise = "style, script, link, meta, .mw-editsection, sup.reference, #toc, .toc, .navbox, .mw-empty-elt"

var blockKinds = map[string]bool{
	"p":          true,
	"ul":         true,
	"ol":         true,
	"dl":         true,
	"table":      true,
	"blockquote": true,
	"pre":        true,
	"figure":     true,
}

func normalizeText(text string) string {
	text = reWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// addSpacesBeforeParsing pads block-level tags so their text does not run
// together once the markup is stripped.
func addSpacesBeforeParsing(html string) string {
	html = reBlockOpen.ReplaceAllString(html, " $0")
	return reBlockClose.ReplaceAllString(html, "$0 ")
}

// Text extracts whitespace-normalised text from an HTML fragment.
func Text(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(addSpacesBeforeParsing(html)))
	if err != nil {
		return normalizeText(html)
	}
	return normalizeText(doc.Text())
}

type segmenter struct {
	seg     models.Segmentation
	current int
}

// Segment walks the top-level elements of the article body. The lead is
// section 0; every heading opens a new section whose parent is the nearest
// preceding section of a lower level. Blocks belong to the closest
// preceding heading.
func Segment(doc *goquery.Document) models.Segmentation {
	root := doc.Find(".mw-parser-output").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	root = root.Clone()
	root.Find(noise).Remove()

	s := &segmenter{
		seg: models.Segmentation{
			Structure: []models.Section{{Index: 0, Level: 0, Title: "", Parent: -1}},
			Blocks:    []models.Block{},
		},
	}
	root.Children().Each(func(_ int, el *goquery.Selection) {
		s.visit(el)
	})
	return s.seg
}

func (s *segmenter) visit(el *goquery.Selection) {
	tag := goquery.NodeName(el)

	if m := reHeading.FindStringSubmatch(tag); m != nil {
		level, _ := strconv.Atoi(m[1])
		s.openSection(level, el)
		return
	}

	// newer MediaWiki wraps headings in <div class="mw-heading mw-headingN">
	if tag == "div" && el.HasClass("mw-heading") {
		if h := el.ChildrenFiltered("h1, h2, h3, h4, h5, h6").First(); h.Length() > 0 {
			level, _ := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(h), "h"))
			s.openSection(level, h)
			return
		}
	}

	if blockKinds[tag] {
		s.addBlock(tag, el)
		return
	}

	if tag == "div" || tag == "section" {
		el.Children().Each(func(_ int, child *goquery.Selection) {
			s.visit(child)
		})
	}
}

func (s *segmenter) openSection(level int, h *goquery.Selection) {
	anchor, _ := h.Attr("id")
	if anchor == "" {
		anchor, _ = h.Find(".mw-headline").Attr("id")
	}

	parent := 0
	for i := len(s.seg.Structure) - 1; i >= 0; i-- {
		if s.seg.Structure[i].Level < level {
			parent = s.seg.Structure[i].Index
			break
		}
	}

	index := len(s.seg.Structure)
	s.seg.Structure = append(s.seg.Structure, models.Section{
		Index:  index,
		Level:  level,
		Title:  normalizeText(h.Text()),
		Anchor: anchor,
		Parent: parent,
	})
	s.current = index
}

func (s *segmenter) addBlock(kind string, el *goquery.Selection) {
	html, err := goquery.OuterHtml(el)
	if err != nil {
		return
	}
	text := Text(html)
	if text == "" {
		return
	}

	var links []string
	seen := make(map[string]bool)
	el.Find("a[title]").Each(func(_ int, a *goquery.Selection) {
		title, _ := a.Attr("title")
		if title != "" && !seen[title] {
			seen[title] = true
			links = append(links, title)
		}
	})

	s.seg.Blocks = append(s.seg.Blocks, models.Block{
		Section: s.current,
		Kind:    kind,
		Text:    text,
		Links:   links,
	})
}
