package rules

import (
	"fmt"
	"regexp"
)

// nakedTagRegexp matches tags that are bare 40-character hex-ish digests
// left behind by CI pushes rather than human-assigned versions.
var nakedTagRegexp = regexp.MustCompile(`^[a-zA-Z0-9]{40}$`)

// ExcludeNaked returns a tag rule dropping "naked" digest-style tags.
func ExcludeNaked() TagRule {
	return TagRule{
		Name:    "exclude-naked",
		Scope:   Any(),
		Pattern: Pattern{re: nakedTagRegexp},
		Exclude: true,
	}
}

// ExcludeNamespaces returns one exclude rule per namespace prefix.
func ExcludeNamespaces(namespaces []string) ImageRuleSet {
	var set ImageRuleSet
	for _, ns := range namespaces {
		set = append(set, ImageRule{
			Name:    fmt.Sprintf("exclude-namespace-%s", ns),
			Pattern: Pattern{re: regexp.MustCompile("^" + regexp.QuoteMeta(ns))},
			Exclude: true,
		})
	}
	return set
}

// ExcludeTagPatterns compiles a list of regular expressions into exclude
// rules applying to every image.
func ExcludeTagPatterns(exprs []string) (TagRuleSet, error) {
	var set TagRuleSet
	for _, expr := range exprs {
		pattern, err := Regex(expr)
		if err != nil {
			return nil, err
		}
		set = append(set, TagRule{
			Name:    fmt.Sprintf("exclude-tag-%s", expr),
			Scope:   Any(),
			Pattern: pattern,
			Exclude: true,
		})
	}
	return set, nil
}
