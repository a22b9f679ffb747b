package bluesky

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticResolver(dids map[string]string) HandleResolver {
	return func(_ context.Context, handle string) (string, error) {
		if did, ok := dids[handle]; ok {
			return did, nil
		}
		return "", errors.New("unknown handle")
	}
}

func TestDetectFacetsLink(t *testing.T) {
	text := "check this out https://example.com/page?id=1 and tell me"
	facets := DetectFacets(context.Background(), text, staticResolver(nil))

	require.Len(t, facets, 1)
	f := facets[0]
	require.NotNil(t, f.Features[0].RichtextFacet_Link)
	assert.Equal(t, "https://example.com/page?id=1", f.Features[0].RichtextFacet_Link.Uri)

	start := strings.Index(text, "https://")
	assert.EqualValues(t, start, f.Index.ByteStart)
	assert.EqualValues(t, start+len("https://example.com/page?id=1"), f.Index.ByteEnd)
}

func TestDetectFacetsLinkTrailingPunctuation(t *testing.T) {
	facets := DetectFacets(context.Background(), "see https://example.com.", staticResolver(nil))

	require.Len(t, facets, 1)
	assert.Equal(t, "https://example.com", facets[0].Features[0].RichtextFacet_Link.Uri)
}

func TestDetectFacetsMention(t *testing.T) {
	text := "hello @alice.bsky.social how are you"
	facets := DetectFacets(context.Background(), text, staticResolver(map[string]string{
		"alice.bsky.social": "did:plc:abc123",
	}))

	require.Len(t, facets, 1)
	f := facets[0]
	require.NotNil(t, f.Features[0].RichtextFacet_Mention)
	assert.Equal(t, "did:plc:abc123", f.Features[0].RichtextFacet_Mention.Did)

	start := strings.Index(text, "@alice")
	assert.EqualValues(t, start, f.Index.ByteStart)
	assert.EqualValues(t, start+len("@alice.bsky.social"), f.Index.ByteEnd)
}

func TestDetectFacetsUnresolvableMentionDropped(t *testing.T) {
	facets := DetectFacets(context.Background(), "hi @nobody.example.com", staticResolver(nil))
	assert.Empty(t, facets)
}

func TestDetectFacetsHashtag(t *testing.T) {
	facets := DetectFacets(context.Background(), "shipping #golang today", staticResolver(nil))

	require.Len(t, facets, 1)
	require.NotNil(t, facets[0].Features[0].RichtextFacet_Tag)
	assert.Equal(t, "golang", facets[0].Features[0].RichtextFacet_Tag.Tag)
}

func TestDetectFacetsByteOffsetsWithMultibyteText(t *testing.T) {
	text := "héllo wörld https://example.com"
	facets := DetectFacets(context.Background(), text, staticResolver(nil))

	require.Len(t, facets, 1)
	start := strings.Index(text, "https://")
	assert.EqualValues(t, start, facets[0].Index.ByteStart)
	assert.EqualValues(t, len(text), facets[0].Index.ByteEnd)
}

func TestDetectFacetsPlainTextHasNone(t *testing.T) {
	facets := DetectFacets(context.Background(), "just some words, no entities here", staticResolver(nil))
	assert.Empty(t, facets)
}
