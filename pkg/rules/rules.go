// Package rules implements the declarative include/exclude filters used to
// select images and tags while browsing a registry catalog.
//
// Filters are declared in an INI file, one section per rule:
//
//	[no-staging-tags]
//	name_match = contains:pinkunicorn/
//	tag = regex:.*staging$
//	action = exclude
//
// A rule carrying a "tag" key filters (image, tag) pairs; a rule carrying
// only a "name" key filters image names. Patterns are either
// "regex:<expression>" (unanchored search) or "contains:<substring>".
// The optional "name_match" pattern scopes a tag rule to matching images
// only. The "action" key defaults to include.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/bnema/regreport/pkg/logger"
)

// Pattern is a compiled match condition over a single string.
type Pattern struct {
	re  *regexp.Regexp
	sub string
	any bool
}

// Regex compiles a regular-expression pattern. Matching is a search, not a
// full-string match.
func Regex(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid regex pattern %q: %w", expr, err)
	}
	return Pattern{re: re}, nil
}

// Contains builds a literal substring pattern.
func Contains(sub string) Pattern {
	return Pattern{sub: sub}
}

// Glob builds a shell-glob pattern matching the whole string. The wildcards
// also cross "/", so "*" covers namespaced image names like "baz/foo".
// A pattern with an unterminated character class is an error.
func Glob(pattern string) (Pattern, error) {
	re, err := globRegexp(pattern)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return Pattern{re: re}, nil
}

// globRegexp translates a glob into an anchored regular expression:
// "*" becomes ".*", "?" becomes ".", "[seq]" and "[!seq]" become character
// classes, everything else is quoted.
func globRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		case '[':
			j := i + 1
			if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
				j++
			}
			// A "]" right after the opening bracket is a literal member.
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				return nil, fmt.Errorf("unterminated character class")
			}
			class := pattern[i+1 : j]
			if class[0] == '!' {
				class = "^" + class[1:]
			}
			sb.WriteString("[")
			sb.WriteString(class)
			sb.WriteString("]")
			i = j
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// Any returns a pattern that matches every string.
func Any() Pattern {
	return Pattern{any: true}
}

// ParsePattern parses the "regex:" / "contains:" rule syntax.
func ParsePattern(rule string) (Pattern, error) {
	switch {
	case strings.HasPrefix(rule, "regex:"):
		return Regex(strings.TrimPrefix(rule, "regex:"))
	case strings.HasPrefix(rule, "contains:"):
		return Contains(strings.TrimPrefix(rule, "contains:")), nil
	default:
		return Pattern{}, fmt.Errorf("unrecognized rule %q", rule)
	}
}

// Matches reports whether the pattern accepts s.
func (p Pattern) Matches(s string) bool {
	switch {
	case p.any:
		return true
	case p.re != nil:
		return p.re.MatchString(s)
	default:
		return strings.Contains(s, p.sub)
	}
}

// ImageRule filters catalog entries by image name.
type ImageRule struct {
	Name    string
	Pattern Pattern
	Exclude bool
}

// Accepts reports whether the image name passes this rule.
func (r ImageRule) Accepts(name string) bool {
	return r.Pattern.Matches(name) != r.Exclude
}

// TagRule filters (image, tag) pairs. Scope gates whether the rule applies
// to a given image at all: out-of-scope pairs are accepted unconditionally.
type TagRule struct {
	Name    string
	Scope   Pattern
	Pattern Pattern
	Exclude bool
}

// Accepts reports whether the (image, tag) pair passes this rule.
func (r TagRule) Accepts(image, tag string) bool {
	if !r.Scope.Matches(image) {
		return true
	}
	return r.Pattern.Matches(tag) != r.Exclude
}

// ImageRuleSet combines image rules with logical AND. The empty set accepts
// everything.
type ImageRuleSet []ImageRule

// Accepts reports whether every rule in the set accepts the image name.
func (s ImageRuleSet) Accepts(name string) bool {
	for _, r := range s {
		if !r.Accepts(name) {
			return false
		}
	}
	return true
}

// TagRuleSet combines tag rules with logical AND. The empty set accepts
// everything.
type TagRuleSet []TagRule

// Accepts reports whether every rule in the set accepts the (image, tag)
// pair.
func (s TagRuleSet) Accepts(image, tag string) bool {
	for _, r := range s {
		if !r.Accepts(image, tag) {
			return false
		}
	}
	return true
}

// ParseFile loads rule definitions from an INI file. Malformed rules are
// dropped with a warning, they never fail the load.
func ParseFile(path string) (ImageRuleSet, TagRuleSet, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load filter file %s: %w", path, err)
	}
	images, tags := Parse(cfg)
	return images, tags, nil
}

// Parse walks the sections of an already-loaded INI file and splits them
// into image and tag rule sets.
func Parse(cfg *ini.File) (ImageRuleSet, TagRuleSet) {
	var images ImageRuleSet
	var tags TagRuleSet
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		logger.Debug("Loading rule", "rule", section.Name())
		switch {
		case section.HasKey("tag"):
			rule, err := parseTagRule(section)
			if err != nil {
				logger.Warn("Discarding tag rule", "rule", section.Name(), "error", err)
				continue
			}
			tags = append(tags, rule)
		case section.HasKey("name"):
			rule, err := parseImageRule(section)
			if err != nil {
				logger.Warn("Discarding image rule", "rule", section.Name(), "error", err)
				continue
			}
			images = append(images, rule)
		default:
			logger.Warn("Discarding rule - it contains no conditions", "rule", section.Name())
		}
	}
	return images, tags
}

func parseTagRule(section *ini.Section) (TagRule, error) {
	scope := Any()
	if section.HasKey("name_match") {
		var err error
		scope, err = ParsePattern(section.Key("name_match").String())
		if err != nil {
			return TagRule{}, fmt.Errorf("invalid name_match: %w", err)
		}
	}
	pattern, err := ParsePattern(section.Key("tag").String())
	if err != nil {
		return TagRule{}, fmt.Errorf("invalid tag: %w", err)
	}
	return TagRule{
		Name:    section.Name(),
		Scope:   scope,
		Pattern: pattern,
		Exclude: isExclude(section),
	}, nil
}

func parseImageRule(section *ini.Section) (ImageRule, error) {
	pattern, err := ParsePattern(section.Key("name").String())
	if err != nil {
		return ImageRule{}, fmt.Errorf("invalid name: %w", err)
	}
	return ImageRule{
		Name:    section.Name(),
		Pattern: pattern,
		Exclude: isExclude(section),
	}, nil
}

func isExclude(section *ini.Section) bool {
	return section.Key("action").String() == "exclude"
}
