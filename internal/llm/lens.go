package llm

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLens is used when a request does not name one.
const DefaultLens = "bridal"

// ErrUnknownLens is returned by LookupLens for names missing from the catalog.
var ErrUnknownLens = errors.New("unknown lens")

// Lens is a coaching perspective: who the coach is, what to score and which values are allowed.
type Lens struct {
	Name            string   `yaml:"name" json:"name"`
	Title           string   `yaml:"title" json:"title"`
	ReportTitle     string   `yaml:"report_title" json:"reportTitle"`
	Role            string   `yaml:"role" json:"role"`
	Brand           string   `yaml:"brand" json:"brand"`
	Style           string   `yaml:"style" json:"style"`
	Tone            string   `yaml:"tone" json:"tone"`
	Subject         string   `yaml:"subject" json:"subject"`
	Focus           []string `yaml:"focus" json:"focus"`
	Scorecard       []string `yaml:"scorecard" json:"scorecard"`
	MissedQuestions []string `yaml:"missed_questions" json:"missedQuestions"`
	TimelineTypes   []string `yaml:"timeline_types" json:"timelineTypes"`
	Playbook        string   `yaml:"playbook" json:"playbook"`
}

//go:embed lenses.yaml
var lensesYAML []byte

var lensCatalog = mustLoadLenses(lensesYAML)

func mustLoadLenses(data []byte) map[string]Lens {
	lenses, err := loadLenses(data)
	if err != nil {
		panic(fmt.Sprintf("llm: embedded lenses: %v", err))
	}
	return lenses
}

func loadLenses(data []byte) (map[string]Lens, error) {
	var doc struct {
		Lenses []Lens `yaml:"lenses"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode lenses: %w", err)
	}
	out := make(map[string]Lens, len(doc.Lenses))
	for _, l := range doc.Lenses {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return nil, errors.New("lens without name")
		}
		if len(l.Scorecard) == 0 {
			return nil, fmt.Errorf("lens %s has no scorecard", name)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("duplicate lens %s", name)
		}
		out[name] = l
	}
	if _, ok := out[DefaultLens]; !ok {
		return nil, fmt.Errorf("default lens %s missing", DefaultLens)
	}
	return out, nil
}

// LookupLens returns the named lens; an empty name selects DefaultLens.
func LookupLens(name string) (Lens, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultLens
	}
	l, ok := lensCatalog[name]
	if !ok {
		return Lens{}, fmt.Errorf("%w: %s", ErrUnknownLens, name)
	}
	return l, nil
}

// LensNames lists the catalog in sorted order.
func LensNames() []string {
	names := make([]string, 0, len(lensCatalog))
	for name := range lensCatalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllowsMissedQuestion reports whether q is one of the lens's allowed missed-question values.
func (l Lens) AllowsMissedQuestion(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	for _, allowed := range l.MissedQuestions {
		if allowed == q {
			return true
		}
	}
	return false
}

// AllowsTimelineType reports whether t is one of the lens's timeline types.
func (l Lens) AllowsTimelineType(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	for _, allowed := range l.TimelineTypes {
		if allowed == t {
			return true
		}
	}
	return false
}
