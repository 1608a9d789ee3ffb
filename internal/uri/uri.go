// Package uri builds and parses the memory:// resource identifiers
// returned in search results and context packs:
//
//	memory://projects/{project_id}/items/{item_id}           (latest version)
//	memory://projects/{project_id}/items/{item_id}@v{N}      (pinned version)
//	either form with a #{section_anchor} fragment
package uri

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// Ref is a parsed memory:// URI.
type Ref struct {
	ProjectID     uuid.UUID
	ItemID        uuid.UUID
	VersionNum    int  // 0 means "latest"
	SectionAnchor string
}

// Latest reports whether the reference omits an explicit @v{N}.
func (r Ref) Latest() bool { return r.VersionNum == 0 }

// Build renders a Ref back into its canonical string form.
func Build(r Ref) string {
	var b strings.Builder
	b.WriteString("memory://projects/")
	b.WriteString(r.ProjectID.String())
	b.WriteString("/items/")
	b.WriteString(r.ItemID.String())
	if !r.Latest() {
		fmt.Fprintf(&b, "@v%d", r.VersionNum)
	}
	if r.SectionAnchor != "" {
		b.WriteString("#")
		b.WriteString(r.SectionAnchor)
	}
	return b.String()
}

const prefix = "memory://projects/"

// Parse validates and decodes a memory:// URI into a Ref.
func Parse(s string) (Ref, error) {
	if !strings.HasPrefix(s, prefix) {
		return Ref{}, apperrors.Validation("uri must start with memory://projects/")
	}
	rest := strings.TrimPrefix(s, prefix)

	var anchor string
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		anchor = rest[i+1:]
		rest = rest[:i]
	}

	parts := strings.SplitN(rest, "/items/", 2)
	if len(parts) != 2 {
		return Ref{}, apperrors.Validation("uri missing /items/ segment")
	}
	projectID, err := uuid.Parse(parts[0])
	if err != nil {
		return Ref{}, apperrors.Validation("uri has invalid project_id").WithDetail("project_id", parts[0])
	}

	itemPart := parts[1]
	versionNum := 0
	if i := strings.IndexByte(itemPart, '@'); i >= 0 {
		versionTag := itemPart[i+1:]
		itemPart = itemPart[:i]
		if !strings.HasPrefix(versionTag, "v") {
			return Ref{}, apperrors.Validation("uri version tag must be @v{N}")
		}
		n, err := strconv.Atoi(strings.TrimPrefix(versionTag, "v"))
		if err != nil || n < 1 {
			return Ref{}, apperrors.Validation("uri version number is invalid").WithDetail("version", versionTag)
		}
		versionNum = n
	}

	itemID, err := uuid.Parse(itemPart)
	if err != nil {
		return Ref{}, apperrors.Validation("uri has invalid item_id").WithDetail("item_id", itemPart)
	}

	return Ref{ProjectID: projectID, ItemID: itemID, VersionNum: versionNum, SectionAnchor: anchor}, nil
}
