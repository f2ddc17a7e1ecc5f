package models

import (
	"bytes"
	"encoding/json"
)

// PageIdentity uniquely identifies a wiki article.
type PageIdentity struct {
	Language string `json:"language" bson:"language"`
	Title    string `json:"title" bson:"title"`
}

// Revision is one immutable version of a page as returned by the MediaWiki API.
type Revision struct {
	RevID     int64  `json:"revid" bson:"revid"`
	ParentID  int64  `json:"parentid,omitempty" bson:"parentid,omitempty"`
	Timestamp string `json:"timestamp" bson:"timestamp"`
	User      string `json:"user,omitempty" bson:"user,omitempty"`
	UserID    int64  `json:"userid,omitempty" bson:"userid,omitempty"`
	Size      int64  `json:"size,omitempty" bson:"size,omitempty"`
	SHA1      string `json:"sha1,omitempty" bson:"sha1,omitempty"`
	Comment   string `json:"comment,omitempty" bson:"comment,omitempty"`
	Content   string `json:"*,omitempty" bson:"*,omitempty"`

	// Extra holds the API fields with no typed counterpart (minor, tags,
	// contentmodel...) so a revision is stored exactly as received.
	Extra map[string]interface{} `json:"-" bson:",inline"`
}

// revisionFields has Revision's layout without its JSON methods.
type revisionFields Revision

var typedRevisionKeys = []string{
	"revid", "parentid", "timestamp", "user", "userid", "size", "sha1", "comment", "*",
}

func (r *Revision) UnmarshalJSON(data []byte) error {
	var typed revisionFields
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var all map[string]interface{}
	if err := dec.Decode(&all); err != nil {
		return err
	}
	for _, k := range typedRevisionKeys {
		delete(all, k)
	}
	typed.Extra = nil
	if len(all) > 0 {
		typed.Extra = all
	}

	*r = Revision(typed)
	return nil
}

func (r Revision) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(revisionFields(r))
	if err != nil || len(r.Extra) == 0 {
		return data, err
	}

	merged := make(map[string]interface{}, len(r.Extra)+len(typedRevisionKeys))
	for k, v := range r.Extra {
		merged[k] = v
	}
	var typed map[string]json.RawMessage
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	for k, v := range typed {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// TimelineEntry is one point of a page's revision timeline.
type TimelineEntry struct {
	Timestamp string `json:"timestamp" bson:"timestamp"`
	RevID     int64  `json:"revid" bson:"revid"`
}

// RevisionDocument is a stored revision key together with its dataset.
type RevisionDocument struct {
	Key     string     `json:"key" bson:"key"`
	Dataset []Revision `json:"dataset" bson:"dataset"`
}

type PageInfo struct {
	PageID       int64  `json:"pageid"`
	Title        string `json:"title"`
	Language     string `json:"language"`
	FullURL      string `json:"fullurl"`
	LastRevision int64  `json:"lastrevid"`
	Length       int64  `json:"length"`
	Touched      string `json:"touched"`
}

type LangLink struct {
	Lang  string `json:"lang"`
	Title string `json:"*"`
}

// MonthViews holds daily page views for one calendar month (YYYYMM).
type MonthViews struct {
	Month      string         `json:"month"`
	DailyViews map[string]int `json:"daily_views"`
}

type Section struct {
	Index  int    `json:"index" bson:"index"`
	Level  int    `json:"level" bson:"level"`
	Title  string `json:"title" bson:"title"`
	Anchor string `json:"anchor,omitempty" bson:"anchor,omitempty"`
	Parent int    `json:"parent" bson:"parent"`
}

type Block struct {
	Section int      `json:"section" bson:"section"`
	Kind    string   `json:"kind" bson:"kind"`
	Text    string   `json:"text" bson:"text"`
	Links   []string `json:"links,omitempty" bson:"links,omitempty"`
}

// Segmentation is the stored output of block segmentation.
type Segmentation struct {
	Structure []Section `json:"structure" bson:"structure"`
	Blocks    []Block   `json:"blocks" bson:"blocks"`
}

type ExtractedArticle struct {
	Title   string
	Text    string
	HTML    string
	Excerpt string
}

// PageSnapshot is the readable rendering of a page's latest revision.
type PageSnapshot struct {
	Language    string `json:"language" bson:"language"`
	Title       string `json:"title" bson:"title"`
	PageID      int64  `json:"pageid" bson:"pageid"`
	URL         string `json:"url" bson:"url"`
	RevID       int64  `json:"revid" bson:"revid"`
	Text        string `json:"text" bson:"text"`
	Excerpt     string `json:"excerpt" bson:"excerpt"`
	HTML        string `json:"html" bson:"html"`
	ContentHash string `json:"content_hash" bson:"content_hash"`
	Scraped     int64  `json:"scraped" bson:"scraped"`
}

type TaskStatus string

const (
	TaskPending  TaskStatus = "PENDING"
	TaskStarted  TaskStatus = "STARTED"
	TaskProgress TaskStatus = "PROGRESS"
	TaskSuccess  TaskStatus = "SUCCESS"
	TaskFailure  TaskStatus = "FAILURE"
)

// Done reports whether the task reached a final state.
func (s TaskStatus) Done() bool {
	return s == TaskSuccess || s == TaskFailure
}

type Task struct {
	ID         string      `json:"id" bson:"_id"`
	Name       string      `json:"name" bson:"name"`
	Arg        string      `json:"arg" bson:"arg"`
	Status     TaskStatus  `json:"status" bson:"status"`
	Current    int         `json:"current" bson:"current"`
	Total      int         `json:"total" bson:"total"`
	Result     interface{} `json:"result,omitempty" bson:"result,omitempty"`
	Error      string      `json:"error,omitempty" bson:"error,omitempty"`
	Worker     string      `json:"worker,omitempty" bson:"worker,omitempty"`
	CreatedAt  int64       `json:"created_at" bson:"created_at"`
	StartedAt  int64       `json:"started_at,omitempty" bson:"started_at,omitempty"`
	FinishedAt int64       `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

// RevisionDiff counts the words changed by one revision relative to the
// revision before it in the timeline.
type RevisionDiff struct {
	RevID     int64  `json:"revid" bson:"revid"`
	Previous  int64  `json:"previous" bson:"previous"`
	Timestamp string `json:"timestamp" bson:"timestamp"`
	Inserted  int    `json:"inserted" bson:"inserted"`
	Deleted   int    `json:"deleted" bson:"deleted"`
	Unchanged int    `json:"unchanged" bson:"unchanged"`
}
