// Package status maps raw scoreboard status labels onto the canonical
// match lifecycle states. The source wording is free text in mixed
// Korean and English and varies between leagues, so classification is
// token tables plus a handful of in-progress patterns.
package status

import (
	"log/slog"
	"regexp"
	"strings"

	"matchsync/internal/config"
	"matchsync/pkg/types"
)

// Classifier resolves raw status text to a canonical status. The zero
// value is not usable; construct via New.
type Classifier struct {
	finished  map[string]struct{}
	scheduled map[string]struct{}
	postponed map[string]struct{}
	liveExact map[string]struct{}
	logger    *slog.Logger
}

var (
	// Elapsed-time markers such as 12', 45+2', and bare minute counters.
	elapsedPattern = regexp.MustCompile(`^\d{1,3}(\+\d{1,2})?'$`)
	// Inning markers used by baseball scoreboards: 1회초, 9회말.
	inningPattern = regexp.MustCompile(`^\d{1,2}회[초말]?$`)
	// Quarter / period markers: Q1..Q4, 1Q..4Q, SET 2.
	periodPattern = regexp.MustCompile(`^(?i)(q[1-4]|[1-4]q|set\s*[1-9])$`)
)

var defaultFinished = []string{
	"종료", "경기종료", "경기 종료", "끝", "ft", "final", "full time", "ended",
}

var defaultScheduled = []string{
	"예정", "경기전", "경기 전", "시작 전", "vs", "not started", "scheduled",
}

var defaultPostponed = []string{
	"연기", "취소", "경기취소", "우천취소", "서스펜디드", "postponed", "canceled", "cancelled", "suspended",
}

var defaultLiveExact = []string{
	"live", "진행중", "진행 중", "경기중", "전반", "후반", "하프타임", "halftime", "연장", "ot", "연장전",
}

// Substrings that mark active play when the label is a composite like
// "후반 12분" or "연장 전반".
var liveSubstrings = []string{"전반", "후반", "연장", "회초", "회말", "진행"}

// New builds a classifier from the built-in token sets plus any
// league-specific additions from configuration.
func New(extra config.StatusTokenSets, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		finished:  tokenSet(defaultFinished, extra.Finished),
		scheduled: tokenSet(defaultScheduled, extra.Scheduled),
		postponed: tokenSet(defaultPostponed, extra.Postponed),
		liveExact: tokenSet(defaultLiveExact, extra.Live),
		logger:    logger,
	}
}

// Classify maps raw status text onto exactly one canonical status. It is
// total: every input, including garbage and the empty string, resolves
// without error. Unrecognized labels, the empty string included,
// classify as LIVE: an unknown label next to a present score pair is far
// more likely an ongoing match than a finished or unstarted one.
// Deliberate bias, kept from the observed source behaviour. The
// transition guard downstream keeps a wrong LIVE from corrupting a
// FINISHED record.
func (c *Classifier) Classify(raw string) types.MatchStatus {
	token := normalizeToken(raw)

	if _, ok := c.finished[token]; ok {
		return types.StatusFinished
	}
	if _, ok := c.scheduled[token]; ok {
		return types.StatusScheduled
	}
	if _, ok := c.postponed[token]; ok {
		return types.StatusPostponed
	}
	if _, ok := c.liveExact[token]; ok {
		return types.StatusLive
	}

	if elapsedPattern.MatchString(token) || inningPattern.MatchString(token) || periodPattern.MatchString(token) {
		return types.StatusLive
	}
	for _, sub := range liveSubstrings {
		if strings.Contains(token, sub) {
			return types.StatusLive
		}
	}

	c.logger.Debug("unrecognized status label, defaulting to live", "label", raw)
	return types.StatusLive
}

func tokenSet(base, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, t := range base {
		set[normalizeToken(t)] = struct{}{}
	}
	for _, t := range extra {
		if tok := normalizeToken(t); tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}
