// Package redact scrubs secrets out of text before it leaves the machine.
// Session transcripts routinely contain environment dumps and pasted
// credentials; everything posted to the tracker passes through Scrub first.
package redact

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Replacement substitutes every detected secret.
const Replacement = "REDACTED"

// candidatePattern matches runs long enough to plausibly be a credential.
var candidatePattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the minimum Shannon entropy for a candidate run to be
// treated as a secret. API keys and tokens sit well above 5.0; prose and
// identifiers sit well below 4.5.
const entropyThreshold = 4.5

var (
	detector     *detect.Detector
	detectorOnce sync.Once
)

// gitleaksDetector builds the default-config detector once. A nil return
// means pattern detection is unavailable and only the entropy layer runs.
func gitleaksDetector() *detect.Detector {
	detectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		detector = d
	})
	return detector
}

type span struct{ start, end int }

// Scrub replaces secrets in s with Replacement. Detection is layered: a
// high-entropy sweep catches opaque tokens, and the gitleaks rule set
// catches known secret formats regardless of entropy. A run flagged by
// either layer is replaced.
func Scrub(s string) string {
	spans := entropySpans(s)
	spans = append(spans, patternSpans(s)...)
	if len(spans) == 0 {
		return s
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
		} else {
			merged = append(merged, sp)
		}
	}

	var b strings.Builder
	prev := 0
	for _, sp := range merged {
		b.WriteString(s[prev:sp.start])
		b.WriteString(Replacement)
		prev = sp.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// ScrubAll scrubs a slice of strings, returning a new slice.
func ScrubAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = Scrub(s)
	}
	return out
}

func entropySpans(s string) []span {
	var spans []span
	for _, loc := range candidatePattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	return spans
}

func patternSpans(s string) []span {
	d := gitleaksDetector()
	if d == nil {
		return nil
	}
	var spans []span
	for _, finding := range d.DetectString(s) {
		if finding.Secret == "" {
			continue
		}
		from := 0
		for {
			idx := strings.Index(s[from:], finding.Secret)
			if idx < 0 {
				break
			}
			abs := from + idx
			spans = append(spans, span{abs, abs + len(finding.Secret)})
			from = abs + len(finding.Secret)
		}
	}
	return spans
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
