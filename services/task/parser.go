package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"contaminer/pkg/errutil"
)

// Outcome is the kind of score a result line carries.
type Outcome string

const (
	OutcomeScored     Outcome = "scored"
	OutcomeError      Outcome = "error"
	OutcomeNoSolution Outcome = "nosolution"
	OutcomeCancelled  Outcome = "cancelled"
)

var elapsedPattern = regexp.MustCompile(`^(\d+)h (\d+)m (\d+)s$`)

// Line is one parsed line of a job results file:
//
//	<uniprot_id>_<pack_number>_<space_group>:<scores>:<H>h <M>m <S>s
type Line struct {
	UniprotID      string
	PackNumber     int
	SpaceGroup     string
	ElapsedSeconds int
	Scores         string

	Outcome Outcome
	QFactor float64
	Percent int
}

// ParseLine parses one results line. It has no side effect.
func ParseLine(raw string) (Line, error) {
	text := strings.TrimSpace(raw)

	fields := strings.Split(text, ":")
	if len(fields) != 3 {
		return Line{}, malformed(raw, "expected 3 colon separated fields, got %d", len(fields))
	}

	label := strings.SplitN(fields[0], "_", 3)
	if len(label) != 3 || label[0] == "" || label[2] == "" {
		return Line{}, malformed(raw, "label %q is not <uniprot>_<pack>_<space group>", fields[0])
	}
	pack, err := strconv.Atoi(label[1])
	if err != nil {
		return Line{}, malformed(raw, "pack number %q is not an integer", label[1])
	}

	l := Line{
		UniprotID:  strings.ToUpper(label[0]),
		PackNumber: pack,
		SpaceGroup: label[2],
		Scores:     fields[1],
	}

	switch fields[1] {
	case string(OutcomeError), string(OutcomeNoSolution), string(OutcomeCancelled):
		l.Outcome = Outcome(fields[1])
	default:
		q, p, ok := strings.Cut(fields[1], "-")
		if !ok {
			return Line{}, malformed(raw, "unknown scores %q", fields[1])
		}
		if l.QFactor, err = strconv.ParseFloat(q, 64); err != nil {
			return Line{}, malformed(raw, "q factor %q is not a number", q)
		}
		if l.Percent, err = strconv.Atoi(p); err != nil {
			return Line{}, malformed(raw, "percent %q is not an integer", p)
		}
		if l.Percent < 0 || l.Percent > 100 {
			return Line{}, malformed(raw, "percent %d is out of 0..100", l.Percent)
		}
		l.Outcome = OutcomeScored
	}

	m := elapsedPattern.FindStringSubmatch(fields[2])
	if m == nil {
		return Line{}, malformed(raw, "elapsed time %q is not <H>h <M>m <S>s", fields[2])
	}
	h, _ := strconv.Atoi(m[1])
	mn, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	l.ElapsedSeconds = ((h*60)+mn)*60 + s

	return l, nil
}

// ParseResults parses every non blank line of a results file and stops at
// the first malformed one.
func ParseResults(content string) ([]Line, error) {
	var lines []Line
	for _, raw := range strings.Split(content, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		l, err := ParseLine(raw)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// String formats the line back in the results file format.
func (l Line) String() string {
	scores := string(l.Outcome)
	if l.Outcome == OutcomeScored {
		scores = strconv.FormatFloat(l.QFactor, 'f', -1, 64) + "-" + strconv.Itoa(l.Percent)
	}
	return fmt.Sprintf("%s_%d_%s:%s:%dh %dm %ds",
		l.UniprotID, l.PackNumber, l.SpaceGroup, scores,
		l.ElapsedSeconds/3600, l.ElapsedSeconds%3600/60, l.ElapsedSeconds%60)
}

// Label is the task name used in remote and local file names, space group
// with dashes.
func (l Line) Label() string {
	return Label(l.UniprotID, l.PackNumber, l.SpaceGroup)
}

func Label(uniprotID string, packNumber int, spaceGroup string) string {
	return fmt.Sprintf("%s_%d_%s", uniprotID, packNumber, strings.ReplaceAll(spaceGroup, " ", "-"))
}

func malformed(raw, format string, args ...any) error {
	return errutil.MalformedLine(fmt.Sprintf(format, args...), nil,
		errutil.WithDetails(errutil.Detail{Field: "line", Message: raw}))
}
