// Package risk turns an extracted visit into a 0-100 risk score and a list of
// red flags using fixed keyword tables. It never diagnoses; it only surfaces
// what was explicitly mentioned in the conversation.
//
// Scoring applies an ordered list of independent rules over a single text
// corpus built from every free-text field of both records. Each rule that
// fires contributes a [Factor]. The total is clamped to [0,100] and mapped
// onto a [Level] with configurable cut points.
//
// Red-flag detection is a separate pass: every keyword hit in every category
// produces one [RedFlag], without deduplication across categories.
package risk

import (
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/medsift/internal/clinical"
)

// Disclaimer is attached to every [Assessment].
const Disclaimer = "This risk assessment is generated from keyword patterns in the conversation " +
	"and does not constitute a medical diagnosis. Clinical judgment is required."

// Level is the coarse risk bucket.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Severity of a red flag.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Default level thresholds (inclusive upper bounds).
const (
	DefaultLowMax    = 30
	DefaultMediumMax = 60
)

// Factor is one scoring rule that fired.
type Factor struct {
	Factor   string `json:"factor"`
	Points   int    `json:"points"`
	Evidence string `json:"evidence"`
}

// RedFlag is a keyword-detected condition that warrants attention regardless
// of the numeric score.
type RedFlag struct {
	Flag              string   `json:"flag"`
	Severity          Severity `json:"severity"`
	Category          Category `json:"category"`
	Evidence          string   `json:"evidence"`
	RecommendedAction string   `json:"recommended_action"`
}

// Assessment is the result of [Engine.Assess].
type Assessment struct {
	Score        int       `json:"risk_score"`
	Level        Level     `json:"risk_level"`
	Factors      []Factor  `json:"risk_factors"`
	RedFlags     []RedFlag `json:"red_flags"`
	TotalFactors int       `json:"total_factors_detected"`
	Disclaimer   string    `json:"disclaimer"`
}

// Option configures an [Engine].
type Option func(*Engine)

// WithThresholds sets the inclusive upper bounds of the low and medium levels.
func WithThresholds(lowMax, mediumMax int) Option {
	return func(e *Engine) {
		e.lowMax, e.mediumMax = lowMax, mediumMax
	}
}

// Engine scores visits. It is safe for concurrent use; thresholds may be
// swapped at runtime with [Engine.SetThresholds].
type Engine struct {
	mu        sync.RWMutex
	lowMax    int
	mediumMax int

	urgent     wordMatcher
	advanced   wordMatcher
	specialist wordMatcher
}

// New returns an Engine with default thresholds 30/60.
func New(opts ...Option) *Engine {
	e := &Engine{
		lowMax:     DefaultLowMax,
		mediumMax:  DefaultMediumMax,
		urgent:     newWordMatcher(urgentTimelineTerms),
		advanced:   newWordMatcher(advancedTestTerms),
		specialist: newWordMatcher(specialistTerms),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetThresholds replaces the level cut points.
func (e *Engine) SetThresholds(lowMax, mediumMax int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lowMax, e.mediumMax = lowMax, mediumMax
}

// LevelFor maps a clamped score onto a level using the current thresholds.
func (e *Engine) LevelFor(score int) Level {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case score <= e.lowMax:
		return LevelLow
	case score <= e.mediumMax:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Assess scores summary and note. Either may be nil; missing fields
// contribute nothing.
func (e *Engine) Assess(summary *clinical.PatientSummary, note *clinical.ClinicianNote) Assessment {
	if summary == nil {
		summary = &clinical.PatientSummary{}
	}
	if note == nil {
		note = &clinical.ClinicianNote{}
	}
	sc := newScanner(Corpus(summary, note))

	var factors []Factor
	add := func(f Factor) {
		if f.Points > 0 {
			factors = append(factors, f)
		}
	}

	// 1. New medications.
	for i, m := range summary.Medications {
		if i >= maxCountedMedications {
			break
		}
		pts := extraMedicationPoints
		if i == 0 {
			pts = firstMedicationPoints
		}
		add(Factor{
			Factor:   strings.TrimSpace(fmt.Sprintf("New medication started: %s %s", m.Name, m.Dose)),
			Points:   pts,
			Evidence: m.Evidence,
		})
	}

	// 2. Multiple diagnoses.
	a := note.SOAPNote.Assessment
	if len(a.Diagnoses) >= 2 {
		add(Factor{
			Factor:   "Multiple chronic conditions: " + strings.Join(a.Diagnoses[:min(3, len(a.Diagnoses))], ", "),
			Points:   multiDiagnosisPoints,
			Evidence: strings.Join(a.Evidence[:min(2, len(a.Evidence))], "; "),
		})
	}

	// 3. Severe symptoms, capped.
	remaining := symptomCap
	for _, s := range severeSymptoms {
		if remaining == 0 {
			break
		}
		m, ok := sc.find(s.keyword)
		if !ok {
			continue
		}
		pts := min(s.points, remaining)
		remaining -= pts
		add(Factor{Factor: "Severe symptom mentioned: " + s.keyword, Points: pts, Evidence: m.snippet})
	}

	// 4. Non-adherence cues.
	for _, m := range sc.findAll(nonAdherenceCues) {
		add(Factor{Factor: "Non-adherence cue: " + m.keyword, Points: nonAdherencePoints, Evidence: m.snippet})
	}

	// 5. Urgent follow-up.
	for _, fu := range summary.FollowUpPlan {
		if e.urgent.first(fu.DateOrTimeline) != "" {
			add(Factor{Factor: "Urgent follow-up required: " + fu.Action, Points: urgentFollowUpPoints, Evidence: fu.Evidence})
			break
		}
	}

	// 6. Tests ordered.
	if len(summary.TestsOrdered) > 0 {
		f := Factor{Points: testsOrderedPoints, Evidence: summary.TestsOrdered[0].Evidence}
		names := make([]string, 0, len(summary.TestsOrdered))
		for _, t := range summary.TestsOrdered {
			names = append(names, t.TestName)
			if f.Factor == "" && e.advanced.first(t.TestName) != "" {
				f.Factor = "Advanced diagnostics ordered: " + t.TestName
				f.Points = advancedTestPoints
				f.Evidence = t.Evidence
			}
		}
		if f.Factor == "" {
			f.Factor = "Tests ordered: " + strings.Join(names[:min(3, len(names))], ", ")
		}
		add(f)
	}

	// 7. Referral.
	if term := e.specialist.first(sc.text); term != "" {
		m, _ := sc.find(term)
		add(Factor{Factor: "Specialist referral: " + term, Points: specialistPoints, Evidence: m.snippet})
	} else if ms := sc.findAll(referralCues); len(ms) > 0 {
		add(Factor{Factor: "Referral mentioned", Points: referralPoints, Evidence: ms[0].snippet})
	}

	// 8. Abnormal vitals.
	vitals := note.SOAPNote.Objective.Vitals
	if vitals == "" {
		vitals = strings.Join(note.SOAPNote.Objective.VitalSigns, "; ")
	}
	vs := newScanner(vitals)
	for _, term := range abnormalVitalTerms {
		if _, ok := vs.find(term); ok {
			add(Factor{Factor: "Abnormal vitals mentioned: " + term, Points: abnormalVitalsPoints, Evidence: vitals})
			break
		}
	}

	// 9. Mental health.
	if ms := sc.findAll(mentalHealthKeywords); len(ms) > 0 {
		add(Factor{Factor: "Mental health concern mentioned: " + ms[0].keyword, Points: mentalHealthPoints, Evidence: ms[0].snippet})
	}

	total := 0
	for _, f := range factors {
		total += f.Points
	}
	total = max(0, min(100, total))

	if factors == nil {
		factors = []Factor{}
	}
	return Assessment{
		Score:        total,
		Level:        e.LevelFor(total),
		Factors:      factors,
		RedFlags:     DetectRedFlags(sc.text),
		TotalFactors: len(factors),
		Disclaimer:   Disclaimer,
	}
}

// DetectRedFlags scans text against every red-flag category.
func DetectRedFlags(text string) []RedFlag {
	sc := newScanner(text)
	flags := []RedFlag{}
	for _, rule := range redFlagRules {
		for _, m := range sc.findAll(rule.keywords) {
			flags = append(flags, RedFlag{
				Flag:              m.keyword + " detected in conversation",
				Severity:          SeverityFor(rule.category),
				Category:          rule.category,
				Evidence:          m.snippet,
				RecommendedAction: RecommendedAction(rule.category),
			})
		}
	}
	return flags
}

// Corpus joins every free-text field of summary and note with single spaces,
// skipping blanks.
func Corpus(summary *clinical.PatientSummary, note *clinical.ClinicianNote) string {
	var parts []string
	push := func(ss ...string) {
		for _, s := range ss {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if summary != nil {
		push(summary.VisitSummary)
		for _, m := range summary.Medications {
			push(m.Name, m.Instructions, m.Evidence)
		}
		for _, t := range summary.TestsOrdered {
			push(t.TestName, t.Evidence)
		}
		for _, f := range summary.FollowUpPlan {
			push(f.Action, f.Evidence)
		}
		for _, r := range summary.LifestyleRecommendations {
			push(r.Recommendation, r.Evidence)
		}
		for _, r := range summary.RedFlagsForPatient {
			push(r.Warning, r.Evidence)
		}
		for _, q := range summary.QuestionsAndAnswers {
			push(q.Question, q.Answer, q.Evidence)
		}
	}
	if note != nil {
		s := note.SOAPNote
		push(
			s.Subjective.ChiefComplaint,
			s.Subjective.HistoryOfPresentIllness,
			s.Subjective.ReviewOfSystems,
			s.Objective.Vitals,
			s.Objective.PhysicalExamFindings,
			s.Assessment.ClinicalImpression,
			s.Plan.FollowUp,
			s.Plan.PatientEducation,
		)
		push(s.Subjective.Evidence...)
		push(s.Objective.Evidence...)
		push(s.Assessment.Evidence...)
		push(s.Plan.Evidence...)
	}
	return strings.Join(parts, " ")
}
