// CLAUDE:SUMMARY Resolves configured resource type names and blocks them on monitor tabs via request hijacking.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockable lists the CDP resource types a monitor tab may drop. Documents
// are absent: the list page itself must always load.
var blockable = []proto.NetworkResourceType{
	proto.NetworkResourceTypeStylesheet,
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeMedia,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeTextTrack,
	proto.NetworkResourceTypeManifest,
	proto.NetworkResourceTypeOther,
}

// blockedTypes resolves configured names ("images", "font", "Media") to CDP
// resource types. Names are case-insensitive and may be plural. Names that
// match nothing blockable are returned in ignored.
func blockedTypes(names []string) (blocked map[proto.NetworkResourceType]bool, ignored []string) {
	blocked = make(map[proto.NetworkResourceType]bool, len(names))
	for _, name := range names {
		want := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "s")
		found := false
		for _, t := range blockable {
			if strings.ToLower(string(t)) == want {
				blocked[t] = true
				found = true
				break
			}
		}
		if !found {
			ignored = append(ignored, name)
		}
	}
	return blocked, ignored
}

// blockResources fails requests of the blocked types on page. It returns
// nil when nothing is blocked.
func blockResources(page *rod.Page, blocked map[proto.NetworkResourceType]bool) *rod.HijackRouter {
	if len(blocked) == 0 {
		return nil
	}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
