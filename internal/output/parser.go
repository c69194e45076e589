// Package output classifies lines printed by the indexing program.
//
// Two formats are understood. Lines beginning with "{" are decoded as the
// structured protocol:
//
//	{"event":"account","label":"svc-1.json"}
//	{"event":"progress","percent":40}
//	{"event":"url","ok":true}
//	{"event":"completed","counts":{"successful":3,"rateLimited":1,"failed":0}}
//	{"event":"failed","note":"quota exhausted"}
//
// Everything else goes through a set of patterns matching the free-text
// output of the legacy Python scripts.
package output

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies what a line means for the running job.
type Kind int

// Event kinds.
const (
	KindNone Kind = iota
	KindAccount
	KindProgress
	KindURLResult
	KindCompleted
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindProgress:
		return "progress"
	case KindURLResult:
		return "url"
	case KindCompleted:
		return "completed"
	case KindFailed:
		return "failed"
	default:
		return "none"
	}
}

// Counts carries optional outcome counts. A nil field was not present in the line.
type Counts struct {
	Successful  *int `json:"successful,omitempty"`
	RateLimited *int `json:"rateLimited,omitempty"`
	Failed      *int `json:"failed,omitempty"`
}

// Tally is the running total of outcome counts for one job.
type Tally struct {
	Successful  int
	RateLimited int
	Failed      int
}

// Apply overwrites the tally fields present in c and keeps the others.
func (c Counts) Apply(t Tally) Tally {
	if c.Successful != nil {
		t.Successful = *c.Successful
	}
	if c.RateLimited != nil {
		t.RateLimited = *c.RateLimited
	}
	if c.Failed != nil {
		t.Failed = *c.Failed
	}
	return t
}

// Event is the classification of a single line.
type Event struct {
	Kind    Kind
	Label   string
	Percent int
	OK      bool
	Counts  Counts
	Note    string
}

var (
	accountPattern    = regexp.MustCompile(`(?i)(?:using account file|switching to account|using account)[:\s]+(.+)$`)
	percentPattern    = regexp.MustCompile(`(\d{1,3})(?:\.\d+)?\s*%`)
	urlSuccessPattern = regexp.MustCompile(`\bSUCCESS:`)
	urlFailurePattern = regexp.MustCompile(`\bFAILED:`)
	failurePattern    = regexp.MustCompile(`(?i)(indexing failed|completed with errors|^\W*error:)`)
	// Summary lines only: "Completed: ..." or "<process> completed". A bare
	// "completed" inside a progress line is not terminal.
	completedPattern   = regexp.MustCompile(`(?i)(?:^\W*completed\s*[:!]|\b(?:process|indexing|script)\s+completed\b)`)
	successRatePattern = regexp.MustCompile(`(?i)success\s+rate`)
	successfulPattern  = regexp.MustCompile(`(?i)(\d+)\s+successful`)
	rateLimitedPattern = regexp.MustCompile(`(?i)(\d+)\s+(?:rate[\s-]?limited|429)`)
	failedCountPattern = regexp.MustCompile(`(?i)(\d+)\s+failed`)
)

// Parse classifies one output line. It never fails: unrecognised input yields KindNone.
func Parse(line string) Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}
	}
	if strings.HasPrefix(line, "{") {
		return parseStructured(line)
	}
	return parseLegacy(line)
}

type structuredLine struct {
	Event   string `json:"event"`
	Label   string `json:"label"`
	Percent *int   `json:"percent"`
	OK      bool   `json:"ok"`
	Note    string `json:"note"`
	Counts  Counts `json:"counts"`
}

func parseStructured(line string) Event {
	var msg structuredLine
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return Event{}
	}
	switch strings.ToLower(msg.Event) {
	case "account":
		if msg.Label == "" {
			return Event{}
		}
		return Event{Kind: KindAccount, Label: msg.Label}
	case "progress":
		if msg.Percent == nil {
			return Event{}
		}
		return Event{Kind: KindProgress, Percent: clampPercent(*msg.Percent)}
	case "url":
		return Event{Kind: KindURLResult, OK: msg.OK, Note: msg.Note}
	case "completed":
		return Event{Kind: KindCompleted, Counts: msg.Counts, Note: msg.Note}
	case "failed":
		return Event{Kind: KindFailed, Note: msg.Note}
	default:
		return Event{}
	}
}

func parseLegacy(line string) Event {
	if m := accountPattern.FindStringSubmatch(line); m != nil {
		return Event{Kind: KindAccount, Label: strings.TrimSpace(m[1])}
	}
	if urlSuccessPattern.MatchString(line) {
		return Event{Kind: KindURLResult, OK: true}
	}
	if urlFailurePattern.MatchString(line) {
		return Event{Kind: KindURLResult, OK: false, Note: line}
	}
	if failurePattern.MatchString(line) {
		return Event{Kind: KindFailed, Counts: legacyCounts(line), Note: line}
	}
	if m := percentPattern.FindStringSubmatch(line); m != nil {
		if successRatePattern.MatchString(line) {
			return Event{}
		}
		pct, err := strconv.Atoi(m[1])
		if err != nil || pct > 100 {
			return Event{}
		}
		return Event{Kind: KindProgress, Percent: pct}
	}
	if completedPattern.MatchString(line) {
		return Event{Kind: KindCompleted, Counts: legacyCounts(line)}
	}
	return Event{}
}

func legacyCounts(line string) Counts {
	return Counts{
		Successful:  firstInt(successfulPattern, line),
		RateLimited: firstInt(rateLimitedPattern, line),
		Failed:      firstInt(failedCountPattern, line),
	}
}

func firstInt(re *regexp.Regexp, line string) *int {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
