package blocks

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiki_harvester/internal/models"
)

const article = `<div class="mw-parser-output">
<style>.x{}</style>
<p><b>Crimea</b> is a peninsula on the <a href="/wiki/Black_Sea" title="Black Sea">Black Sea</a>.<sup class="reference">[1]</sup></p>
<div id="toc" class="toc"><ul><li>Contents</li></ul></div>
<h2><span class="mw-headline" id="History">History</span><span class="mw-editsection">[edit]</span></h2>
<p>Ancient <a href="/wiki/Greeks" title="Greeks">Greeks</a> founded colonies.</p>
<h3><span class="mw-headline" id="Antiquity">Antiquity</span></h3>
<ul><li>Taurians</li><li>Scythians</li></ul>
<div class="mw-heading mw-heading2"><h2 id="Geography">Geography</h2><span class="mw-editsection">[edit]</span></div>
<p>   </p>
<table><tr><td>Area</td><td>27,000 km2</td></tr></table>
</div>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestSegment_Structure(t *testing.T) {
	seg := Segment(parse(t, article))

	assert.Equal(t, []models.Section{
		{Index: 0, Level: 0, Title: "", Parent: -1},
		{Index: 1, Level: 2, Title: "History", Anchor: "History", Parent: 0},
		{Index: 2, Level: 3, Title: "Antiquity", Anchor: "Antiquity", Parent: 1},
		{Index: 3, Level: 2, Title: "Geography", Anchor: "Geography", Parent: 0},
	}, seg.Structure)
}

func TestSegment_BlocksFollowNearestHeading(t *testing.T) {
	seg := Segment(parse(t, article))
	require.Len(t, seg.Blocks, 4)

	lead := seg.Blocks[0]
	assert.Equal(t, 0, lead.Section)
	assert.Equal(t, "p", lead.Kind)
	assert.Equal(t, "Crimea is a peninsula on the Black Sea.", lead.Text)
	assert.Equal(t, []string{"Black Sea"}, lead.Links)

	assert.Equal(t, 1, seg.Blocks[1].Section)
	assert.Equal(t, []string{"Greeks"}, seg.Blocks[1].Links)

	list := seg.Blocks[2]
	assert.Equal(t, 2, list.Section)
	assert.Equal(t, "ul", list.Kind)
	assert.Equal(t, "Taurians Scythians", list.Text)

	table := seg.Blocks[3]
	assert.Equal(t, 3, table.Section)
	assert.Equal(t, "table", table.Kind)
	assert.Equal(t, "Area 27,000 km2", table.Text)
}

func TestSegment_DoesNotMutateDocument(t *testing.T) {
	doc := parse(t, article)
	Segment(doc)
	assert.Equal(t, 1, doc.Find("#toc").Length())
}

func TestSegment_WithoutParserOutput(t *testing.T) {
	seg := Segment(parse(t, `<p>Only a lead.</p>`))
	require.Len(t, seg.Blocks, 1)
	assert.Equal(t, "Only a lead.", seg.Blocks[0].Text)
	assert.Len(t, seg.Structure, 1)
}

func TestText(t *testing.T) {
	assert.Equal(t, "one two", Text("<div>one</div><div>two</div>"))
	assert.Equal(t, "a b", Text("  a \n\t b "))
}
