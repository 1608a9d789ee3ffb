package uri

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_LatestNoAnchor(t *testing.T) {
	p, i := uuid.New(), uuid.New()
	got := Build(Ref{ProjectID: p, ItemID: i})
	assert.Equal(t, "memory://projects/"+p.String()+"/items/"+i.String(), got)
}

func TestBuild_PinnedWithAnchor(t *testing.T) {
	p, i := uuid.New(), uuid.New()
	got := Build(Ref{ProjectID: p, ItemID: i, VersionNum: 3, SectionAnchor: "h2:myapp.auth"})
	assert.Equal(t, "memory://projects/"+p.String()+"/items/"+i.String()+"@v3#h2:myapp.auth", got)
}

func TestParse_RoundTrips(t *testing.T) {
	p, i := uuid.New(), uuid.New()
	ref := Ref{ProjectID: p, ItemID: i, VersionNum: 7, SectionAnchor: "h1:intro"}
	parsed, err := Parse(Build(ref))
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)
}

func TestParse_LatestHasZeroVersionNum(t *testing.T) {
	p, i := uuid.New(), uuid.New()
	parsed, err := Parse(Build(Ref{ProjectID: p, ItemID: i}))
	require.NoError(t, err)
	assert.True(t, parsed.Latest())
}

func TestParse_RejectsMalformedURI(t *testing.T) {
	cases := []string{
		"http://projects/x/items/y",
		"memory://projects/not-a-uuid/items/" + uuid.NewString(),
		"memory://projects/" + uuid.NewString() + "/items/not-a-uuid",
		"memory://projects/" + uuid.NewString() + "/items/" + uuid.NewString() + "@3",
	}
	for _, c := range cases {
		_, err := Parse(c)
		assert.Error(t, err, c)
	}
}
