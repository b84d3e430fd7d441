// Package extract selects the preferred video variant of a highlight and
// builds the notification payload for it.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"homerun-notifier/pkg/highlight"
)

// Defaults for the production feed and the high quality MP4 variant.
const (
	DefaultFeedType     = "CMS"
	DefaultPlaybackName = "mp4Avc"
)

var (
	// ErrFeedNotFound means no feed carried the target delivery type.
	ErrFeedNotFound = errors.New("feed not found")
	// ErrPlaybackNotFound means the target feed had none of the wanted variants.
	ErrPlaybackNotFound = errors.New("playback not found")
)

// Result is a selected playback with the payload built from it.
type Result struct {
	Playback    *highlight.Playback
	Description string // Plain text, for records and logs
	Payload     *highlight.Payload
}

// Extractor picks playbacks by feed type and variant preference.
type Extractor struct {
	feedType  string
	playbacks []string // Preferred variant names, best first
}

// New creates an extractor. Empty arguments fall back to the defaults.
func New(feedType string, playbackNames []string) *Extractor {
	if feedType == "" {
		feedType = DefaultFeedType
	}
	var names []string
	for _, n := range playbackNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = []string{DefaultPlaybackName}
	}
	return &Extractor{feedType: feedType, playbacks: names}
}

// Extract returns the payload for h, or an error wrapping ErrFeedNotFound or
// ErrPlaybackNotFound.
func (e *Extractor) Extract(h *highlight.Highlight) (*Result, error) {
	if h == nil {
		return nil, errors.New("nil highlight")
	}

	feed := e.feed(h)
	if feed == nil {
		return nil, fmt.Errorf("%w: type %q in highlight %s", ErrFeedNotFound, e.feedType, h.ID)
	}

	pb := e.playback(feed)
	if pb == nil {
		return nil, fmt.Errorf("%w: %v in %s feed of highlight %s", ErrPlaybackNotFound, e.playbacks, e.feedType, h.ID)
	}

	return &Result{
		Playback:    pb,
		Description: PlainText(h.Description),
		Payload:     &highlight.Payload{Text: html.UnescapeString(h.Description) + " " + pb.URL},
	}, nil
}

func (e *Extractor) feed(h *highlight.Highlight) *highlight.Feed {
	for _, f := range h.Feeds {
		if f != nil && f.Type == e.feedType {
			return f
		}
	}
	return nil
}

func (e *Extractor) playback(f *highlight.Feed) *highlight.Playback {
	for _, name := range e.playbacks {
		for _, pb := range f.Playbacks {
			if pb != nil && pb.Name == name && pb.URL != "" {
				return pb
			}
		}
	}
	return nil
}

// PlainText strips markup and entities from s and collapses whitespace.
// It is used for archived records, not for payload text.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
