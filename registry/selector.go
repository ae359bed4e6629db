package registry

import (
	"fmt"
	"strings"

	"github.com/ruletest-dev/ruletest/types"
)

// Selector decides which cases run in a given invocation of the harness. Tags
// carry no meaning inside the harness core; only the selector reads them.
type Selector struct {
	// Include keeps only cases carrying at least one of these tags
	Include []types.Tag
	// Exclude drops cases carrying any of these tags
	Exclude []types.Tag
	// AltEngine drops cases expected to differ under the alternate engine
	AltEngine bool
	// CaseIDs keeps only the named cases
	CaseIDs []string
}

// ParseTags splits a comma separated tag list
func ParseTags(list []string) []types.Tag {
	var tags []types.Tag
	for _, item := range list {
		for _, t := range strings.Split(item, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, types.Tag(t))
			}
		}
	}
	return tags
}

// Reason explains why a case is not selected; empty means it is selected
func (s Selector) Reason(tc types.TestCase) string {
	if len(s.CaseIDs) > 0 && !contains(s.CaseIDs, tc.ID) {
		return "not in requested case ids"
	}
	if s.AltEngine && tc.HasTag(types.TagOsemfail) {
		return fmt.Sprintf("tagged %s under the alternate engine", types.TagOsemfail)
	}
	for _, tag := range s.Exclude {
		if tc.HasTag(tag) {
			return fmt.Sprintf("tagged %s", tag)
		}
	}
	if len(s.Include) == 0 {
		return ""
	}
	for _, tag := range s.Include {
		if tc.HasTag(tag) {
			return ""
		}
	}
	return "no included tag"
}

// Selected reports whether tc should run
func (s Selector) Selected(tc types.TestCase) bool {
	return s.Reason(tc) == ""
}

// Partition splits cases into those that run and those that are skipped,
// preserving order.
func (s Selector) Partition(cases []types.TestCase) (selected, skipped []types.TestCase) {
	for _, tc := range cases {
		if s.Selected(tc) {
			selected = append(selected, tc)
		} else {
			skipped = append(skipped, tc)
		}
	}
	return selected, skipped
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
