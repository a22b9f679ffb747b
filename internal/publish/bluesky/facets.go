package bluesky

import (
	"context"
	"regexp"
	"strings"

	"github.com/bluesky-social/indigo/api/bsky"
)

// HandleResolver resolves an atproto handle to its DID.
type HandleResolver func(ctx context.Context, handle string) (string, error)

var (
	linkPattern    = regexp.MustCompile(`https?://[^\s]+`)
	mentionPattern = regexp.MustCompile(`(^|\s)(@[a-zA-Z0-9][a-zA-Z0-9.-]*\.[a-zA-Z]{2,})`)
	tagPattern     = regexp.MustCompile(`(^|\s)(#[a-zA-Z][a-zA-Z0-9_]*)`)
)

// DetectFacets finds links, mentions, and hashtags in the status text and
// returns them as richtext facets with byte offsets. Mentions whose
// handle does not resolve are dropped rather than posted broken.
func DetectFacets(ctx context.Context, text string, resolve HandleResolver) []*bsky.RichtextFacet {
	var facets []*bsky.RichtextFacet

	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		uri := strings.TrimRight(text[loc[0]:loc[1]], `.,;:!?)]'"`)
		if uri == "" {
			continue
		}
		facets = append(facets, facet(loc[0], loc[0]+len(uri), &bsky.RichtextFacet_Features_Elem{
			RichtextFacet_Link: &bsky.RichtextFacet_Link{
				LexiconTypeID: "app.bsky.richtext.facet#link",
				Uri:           uri,
			},
		}))
	}

	for _, loc := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[4], loc[5]
		handle := strings.TrimPrefix(text[start:end], "@")
		did, err := resolve(ctx, handle)
		if err != nil || did == "" {
			continue
		}
		facets = append(facets, facet(start, end, &bsky.RichtextFacet_Features_Elem{
			RichtextFacet_Mention: &bsky.RichtextFacet_Mention{
				LexiconTypeID: "app.bsky.richtext.facet#mention",
				Did:           did,
			},
		}))
	}

	for _, loc := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[4], loc[5]
		facets = append(facets, facet(start, end, &bsky.RichtextFacet_Features_Elem{
			RichtextFacet_Tag: &bsky.RichtextFacet_Tag{
				LexiconTypeID: "app.bsky.richtext.facet#tag",
				Tag:           strings.TrimPrefix(text[start:end], "#"),
			},
		}))
	}

	return facets
}

func facet(start, end int, feature *bsky.RichtextFacet_Features_Elem) *bsky.RichtextFacet {
	return &bsky.RichtextFacet{
		Index: &bsky.RichtextFacet_ByteSlice{
			ByteStart: int64(start),
			ByteEnd:   int64(end),
		},
		Features: []*bsky.RichtextFacet_Features_Elem{feature},
	}
}
