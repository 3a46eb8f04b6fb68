package clinical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodePatientSummary parses and normalises a patient summary. JSON nulls
// become zero values.
func DecodePatientSummary(data []byte) (PatientSummary, error) {
	var s PatientSummary
	if err := decode(data, &s); err != nil {
		return PatientSummary{}, fmt.Errorf("clinical: decode patient summary: %w", err)
	}
	NormalizeSummary(&s)
	return s, nil
}

// DecodeClinicianNote parses and normalises a clinician note.
func DecodeClinicianNote(data []byte) (ClinicianNote, error) {
	var n ClinicianNote
	if err := decode(data, &n); err != nil {
		return ClinicianNote{}, fmt.Errorf("clinical: decode clinician note: %w", err)
	}
	NormalizeNote(&n)
	return n, nil
}

func decode(data []byte, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty document")
	}
	return json.Unmarshal(data, v)
}

// NormalizeSummary trims every string field and drops list entries whose key
// field (name, test name, action, recommendation, warning or question) is
// blank. It is safe to call more than once.
func NormalizeSummary(s *PatientSummary) {
	if s == nil {
		return
	}
	s.VisitSummary = strings.TrimSpace(s.VisitSummary)

	meds := s.Medications[:0]
	for _, m := range s.Medications {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			continue
		}
		m.Dose = strings.TrimSpace(m.Dose)
		m.Frequency = strings.TrimSpace(m.Frequency)
		m.Duration = strings.TrimSpace(m.Duration)
		m.Instructions = strings.TrimSpace(m.Instructions)
		m.Evidence = strings.TrimSpace(m.Evidence)
		meds = append(meds, m)
	}
	s.Medications = meds

	tests := s.TestsOrdered[:0]
	for _, t := range s.TestsOrdered {
		t.TestName = strings.TrimSpace(t.TestName)
		if t.TestName == "" {
			continue
		}
		t.Instructions = strings.TrimSpace(t.Instructions)
		t.Timeline = strings.TrimSpace(t.Timeline)
		t.Evidence = strings.TrimSpace(t.Evidence)
		tests = append(tests, t)
	}
	s.TestsOrdered = tests

	fus := s.FollowUpPlan[:0]
	for _, f := range s.FollowUpPlan {
		f.Action = strings.TrimSpace(f.Action)
		if f.Action == "" {
			continue
		}
		f.DateOrTimeline = strings.TrimSpace(f.DateOrTimeline)
		f.Evidence = strings.TrimSpace(f.Evidence)
		fus = append(fus, f)
	}
	s.FollowUpPlan = fus

	recs := s.LifestyleRecommendations[:0]
	for _, r := range s.LifestyleRecommendations {
		r.Recommendation = strings.TrimSpace(r.Recommendation)
		if r.Recommendation == "" {
			continue
		}
		r.Details = strings.TrimSpace(r.Details)
		r.Evidence = strings.TrimSpace(r.Evidence)
		recs = append(recs, r)
	}
	s.LifestyleRecommendations = recs

	flags := s.RedFlagsForPatient[:0]
	for _, f := range s.RedFlagsForPatient {
		f.Warning = strings.TrimSpace(f.Warning)
		if f.Warning == "" {
			continue
		}
		f.Evidence = strings.TrimSpace(f.Evidence)
		flags = append(flags, f)
	}
	s.RedFlagsForPatient = flags

	qas := s.QuestionsAndAnswers[:0]
	for _, q := range s.QuestionsAndAnswers {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			continue
		}
		q.Answer = strings.TrimSpace(q.Answer)
		q.Evidence = strings.TrimSpace(q.Evidence)
		qas = append(qas, q)
	}
	s.QuestionsAndAnswers = qas
}

// NormalizeNote trims every string, removes blank entries from the SOAP
// lists, drops action items without an action and coerces unknown priorities
// to [PriorityMedium].
func NormalizeNote(n *ClinicianNote) {
	if n == nil {
		return
	}
	subj := &n.SOAPNote.Subjective
	subj.ChiefComplaint = strings.TrimSpace(subj.ChiefComplaint)
	subj.HistoryOfPresentIllness = strings.TrimSpace(subj.HistoryOfPresentIllness)
	subj.ReviewOfSystems = strings.TrimSpace(subj.ReviewOfSystems)
	subj.Findings = compactStrings(subj.Findings)
	subj.Evidence = compactStrings(subj.Evidence)

	obj := &n.SOAPNote.Objective
	obj.Vitals = strings.TrimSpace(obj.Vitals)
	obj.PhysicalExamFindings = strings.TrimSpace(obj.PhysicalExamFindings)
	obj.VitalSigns = compactStrings(obj.VitalSigns)
	obj.PhysicalExam = compactStrings(obj.PhysicalExam)
	obj.MentalStateExam = compactStrings(obj.MentalStateExam)
	obj.LabResults = compactStrings(obj.LabResults)
	obj.Evidence = compactStrings(obj.Evidence)

	a := &n.SOAPNote.Assessment
	a.ClinicalImpression = strings.TrimSpace(a.ClinicalImpression)
	a.Diagnoses = compactStrings(a.Diagnoses)
	a.Findings = compactStrings(a.Findings)
	a.Evidence = compactStrings(a.Evidence)

	p := &n.SOAPNote.Plan
	p.FollowUp = strings.TrimSpace(p.FollowUp)
	p.PatientEducation = strings.TrimSpace(p.PatientEducation)
	p.Findings = compactStrings(p.Findings)
	p.Evidence = compactStrings(p.Evidence)

	n.ProblemList = compactStrings(n.ProblemList)

	items := n.ActionItems[:0]
	for _, it := range n.ActionItems {
		it.Action = strings.TrimSpace(it.Action)
		if it.Action == "" {
			continue
		}
		it.Priority = ParsePriority(string(it.Priority))
		it.Evidence = strings.TrimSpace(it.Evidence)
		items = append(items, it)
	}
	n.ActionItems = items
}

// ParsePriority maps s case-insensitively onto a known priority, defaulting
// to [PriorityMedium].
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p
	default:
		return PriorityMedium
	}
}

// compactStrings trims each entry and removes the blank ones. The result is
// never nil so it encodes as [] rather than null.
func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
