package scrape

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	timeRE = regexp.MustCompile(
		`(?i)(?:\D*(\d+)\s*(?:hours|hrs|hr|h))?(?:\D*(\d+)\s*(?:minutes|mins|min|m))?`)
	serveNumberRE = regexp.MustCompile(`\d+`)
	serveItemsRE  = regexp.MustCompile(`(?i)\bsandwiches\b|\btacquitos\b|\bmakes\b|\bcups\b|\bappetizer\b|\bporzioni\b`)
	serveRangeRE  = regexp.MustCompile(`(?i)\d+(?:\s+to\s+|-)(\d+)`)
	whitespaceRE  = regexp.MustCompile(`\s+`)
)

// NormalizeString unescapes HTML entities and collapses all runs of
// whitespace to single spaces.
func NormalizeString(s string) string {
	unescaped := html.UnescapeString(s)
	replaced := strings.NewReplacer(" ", " ", "\n", " ", "\t", " ").Replace(unescaped)
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(replaced), " ")
}

// Minutes parses a duration expression into whole minutes. It accepts bare
// integers, ISO 8601 durations such as "PT1H30M", and loose phrases like
// "1 hour 30 mins" or "12-15 minutes" (ranges resolve to the upper bound).
// Unparseable input yields zero.
func Minutes(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if strings.HasPrefix(s, "P") && strings.Contains(s, "T") {
		s = s[strings.Index(s, "T")+1:]
	}
	if i := strings.Index(s, "-"); i >= 0 {
		s = s[i+1:]
	}
	if strings.Contains(s, "h") {
		s = strings.ReplaceAll(s, "h", "hours") + "minutes"
	}

	m := timeRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	minutes := 0
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		minutes += 60 * h
	}
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		minutes += n
	}
	return minutes
}

// Yields renders a serving expression as "N serving(s)", or "N item(s)" when
// the text describes discrete items rather than portions. Ranges such as
// "4 to 6" resolve to the upper bound.
func Yields(s string) string {
	s = strings.TrimSpace(s)
	if m := serveRangeRE.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	count := "0"
	if m := serveNumberRE.FindString(s); m != "" {
		count = m
	}
	if serveItemsRE.MatchString(s) {
		return fmt.Sprintf("%s item(s)", count)
	}
	return fmt.Sprintf("%s serving(s)", count)
}
