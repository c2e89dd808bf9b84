package curator

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
)

// MentionExtractor pulls candidate entity names out of free text.
type MentionExtractor interface {
	Extract(text string) []string
}

// Vocabulary lists known names per entity family. Matches are reported with
// the vocabulary spelling.
type Vocabulary struct {
	Platforms  []string `yaml:"platforms"`
	Industries []string `yaml:"industries"`
	Tactics    []string `yaml:"tactics"`
}

// DefaultVocabulary covers the platforms, verticals and tactics seen in
// campaign reports.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Platforms: []string{
			"Facebook", "Meta", "Instagram", "LinkedIn", "TikTok", "Snapchat", "Pinterest",
			"YouTube", "Google Ads", "Microsoft Ads", "Bing", "Spotify", "Pandora",
			"The Trade Desk", "Madhive", "Amazon DSP", "Hulu", "Roku",
		},
		Industries: []string{
			"Roofing", "HVAC", "Plumbing", "Automotive", "Healthcare", "Dental", "Legal",
			"Real Estate", "Restaurants", "Retail", "Education", "Home Services",
			"Financial Services", "Insurance",
		},
		Tactics: []string{
			"Retargeting", "Prospecting", "Brand Awareness", "Lead Generation",
			"Programmatic Display", "Connected TV", "CTV", "OTT", "Streaming Audio",
			"Native", "Paid Search", "SEM", "Online Video",
		},
	}
}

// LoadVocabulary reads a YAML vocabulary file. Lists missing from the file
// keep their default values.
func LoadVocabulary(path string) (Vocabulary, error) {
	vocab := DefaultVocabulary()
	data, err := os.ReadFile(path)
	if err != nil {
		return vocab, eris.Wrapf(err, "curator: read vocabulary %s", path)
	}

	var file Vocabulary
	if err := yaml.Unmarshal(data, &file); err != nil {
		return vocab, eris.Wrapf(err, "curator: parse vocabulary %s", path)
	}
	if len(file.Platforms) > 0 {
		vocab.Platforms = file.Platforms
	}
	if len(file.Industries) > 0 {
		vocab.Industries = file.Industries
	}
	if len(file.Tactics) > 0 {
		vocab.Tactics = file.Tactics
	}
	return vocab, nil
}

var (
	// "Acme Roofing campaigns", "Meta Advantage+ ads"
	campaignPattern = regexp.MustCompile(`\b([A-Z][\w&'+.-]*(?:\s+[A-Z][\w&'+.-]*)*)\s+(?:campaigns?|ads)\b`)
	// "the roofing industry", "Home Services vertical"
	industryPattern = regexp.MustCompile(`(?i)\b([a-z][\w&-]*(?:\s+[a-z][\w&-]*)?)\s+(?:industry|vertical)\b`)
)

var leadingStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true, "our": true,
	"their": true, "your": true, "in": true, "for": true, "of": true,
}

// RegexExtractor finds mentions with surface patterns and vocabulary lookup.
type RegexExtractor struct {
	vocab []*regexp.Regexp
	terms []string
}

// NewRegexExtractor compiles a word-boundary matcher for every vocabulary term.
func NewRegexExtractor(vocab Vocabulary) *RegexExtractor {
	e := &RegexExtractor{}
	for _, list := range [][]string{vocab.Platforms, vocab.Industries, vocab.Tactics} {
		for _, term := range list {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			e.terms = append(e.terms, term)
			e.vocab = append(e.vocab, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(term)+`\b`))
		}
	}
	return e
}

type hit struct {
	pos  int
	text string
}

// Extract returns mentions in order of first appearance, deduplicated
// case-insensitively. Mentions of MinMentionLength characters or fewer are
// dropped.
func (e *RegexExtractor) Extract(text string) []string {
	var hits []hit
	for _, re := range []*regexp.Regexp{campaignPattern, industryPattern} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			phrase, offset := trimStopwords(text[m[2]:m[3]])
			hits = append(hits, hit{pos: m[2] + offset, text: phrase})
		}
	}
	for i, re := range e.vocab {
		if loc := re.FindStringIndex(text); loc != nil {
			hits = append(hits, hit{pos: loc[0], text: e.terms[i]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool, len(hits))
	var out []string
	for _, h := range hits {
		mention := strings.TrimSpace(h.text)
		if utf8.RuneCountInString(mention) <= policy.MinMentionLength {
			continue
		}
		key := strings.ToLower(mention)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, mention)
	}
	return out
}

// trimStopwords drops leading articles and prepositions from a phrase and
// reports how many bytes were removed.
func trimStopwords(phrase string) (string, int) {
	offset := 0
	for {
		word, rest, found := strings.Cut(phrase, " ")
		if !found || !leadingStopwords[strings.ToLower(word)] {
			return phrase, offset
		}
		offset += len(word) + 1
		phrase = rest
	}
}

// Mentions runs the extractor and falls back to the content prefix as a single
// pseudo-mention, so matching always has at least one input for non-blank
// content.
func Mentions(ex MentionExtractor, content string) []string {
	if mentions := ex.Extract(content); len(mentions) > 0 {
		return mentions
	}
	prefix := strings.TrimSpace(truncateRunes(content, policy.FallbackPrefixChars))
	if prefix == "" {
		return nil
	}
	return []string{prefix}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
