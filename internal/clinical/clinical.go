// Package clinical defines the structured records extracted from a visit
// transcript: the patient-facing summary and the clinician-facing SOAP note.
//
// Records usually come from a language model and are loose about nulls,
// casing and empty entries. [Decode] and [Normalize] resolve all of that once,
// at ingestion, so downstream engines can read every field without checks.
package clinical

// Priority of a clinician action item.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Medication is a drug mentioned in the visit.
type Medication struct {
	Name         string `json:"name"`
	Dose         string `json:"dose"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
	Evidence     string `json:"evidence"`
	Verified     bool   `json:"verified"`
}

// TestOrdered is a lab test or imaging study the clinician ordered.
type TestOrdered struct {
	TestName     string `json:"test_name"`
	Instructions string `json:"instructions"`
	Timeline     string `json:"timeline"`
	Evidence     string `json:"evidence"`
	Verified     bool   `json:"verified"`
}

// FollowUpItem is a follow-up action with an optional timeline.
type FollowUpItem struct {
	Action         string `json:"action"`
	DateOrTimeline string `json:"date_or_timeline"`
	Evidence       string `json:"evidence"`
	Verified       bool   `json:"verified"`
}

// LifestyleRecommendation is non-pharmacological advice given to the patient.
type LifestyleRecommendation struct {
	Recommendation string `json:"recommendation"`
	Details        string `json:"details"`
	Evidence       string `json:"evidence"`
	Verified       bool   `json:"verified"`
}

// RedFlagForPatient is a warning sign the patient was told to watch for.
type RedFlagForPatient struct {
	Warning  string `json:"warning"`
	Evidence string `json:"evidence"`
	Verified bool   `json:"verified"`
}

// QAItem is a question the patient asked together with the answer given.
type QAItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Evidence string `json:"evidence"`
	Verified bool   `json:"verified"`
}

// PatientSummary is the patient-facing extraction of a visit.
type PatientSummary struct {
	VisitSummary             string                    `json:"visit_summary"`
	Medications              []Medication              `json:"medications"`
	TestsOrdered             []TestOrdered             `json:"tests_ordered"`
	FollowUpPlan             []FollowUpItem            `json:"follow_up_plan"`
	LifestyleRecommendations []LifestyleRecommendation `json:"lifestyle_recommendations"`
	RedFlagsForPatient       []RedFlagForPatient       `json:"red_flags_for_patient"`
	QuestionsAndAnswers      []QAItem                  `json:"questions_and_answers"`
}

// Subjective is the S section of a SOAP note.
type Subjective struct {
	ChiefComplaint          string   `json:"chief_complaint"`
	HistoryOfPresentIllness string   `json:"history_of_present_illness"`
	ReviewOfSystems         string   `json:"review_of_systems"`
	Findings                []string `json:"findings"`
	Evidence                []string `json:"evidence"`
}

// Objective is the O section of a SOAP note.
type Objective struct {
	Vitals               string   `json:"vitals"`
	PhysicalExamFindings string   `json:"physical_exam_findings"`
	VitalSigns           []string `json:"vital_signs"`
	PhysicalExam         []string `json:"physical_exam"`
	MentalStateExam      []string `json:"mental_state_exam"`
	LabResults           []string `json:"lab_results"`
	Evidence             []string `json:"evidence"`
}

// Assessment is the A section of a SOAP note.
type Assessment struct {
	ClinicalImpression string   `json:"clinical_impression"`
	Diagnoses          []string `json:"diagnoses"`
	Findings           []string `json:"findings"`
	Evidence           []string `json:"evidence"`
}

// Plan is the P section of a SOAP note.
type Plan struct {
	FollowUp         string   `json:"follow_up"`
	PatientEducation string   `json:"patient_education"`
	Findings         []string `json:"findings"`
	Evidence         []string `json:"evidence"`
}

// SOAPNote groups the four SOAP sections.
type SOAPNote struct {
	Subjective Subjective `json:"subjective"`
	Objective  Objective  `json:"objective"`
	Assessment Assessment `json:"assessment"`
	Plan       Plan       `json:"plan"`
}

// ActionItem is a task for the care team.
type ActionItem struct {
	Action   string   `json:"action"`
	Priority Priority `json:"priority"`
	Evidence string   `json:"evidence"`
	Verified bool     `json:"verified"`
}

// ClinicianNote is the clinician-facing extraction of a visit.
type ClinicianNote struct {
	SOAPNote    SOAPNote     `json:"soap_note"`
	ProblemList []string     `json:"problem_list"`
	ActionItems []ActionItem `json:"action_items"`
}

// Conditions returns the assessment diagnoses followed by the assessment
// findings, in order, without blanks.
func (n *ClinicianNote) Conditions() []string {
	if n == nil {
		return nil
	}
	a := n.SOAPNote.Assessment
	out := make([]string, 0, len(a.Diagnoses)+len(a.Findings))
	out = append(out, a.Diagnoses...)
	out = append(out, a.Findings...)
	return compactStrings(out)
}

// MedicationNames returns the names of every medication in the summary.
func (s *PatientSummary) MedicationNames() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Medications))
	for _, m := range s.Medications {
		out = append(out, m.Name)
	}
	return compactStrings(out)
}
