package risk

// symptomWeight pairs a severe-symptom keyword with its point value.
type symptomWeight struct {
	keyword string
	points  int
}

// severeSymptoms is scanned in order. The sum of all weights is far above
// [symptomCap]; only the first matches up to the cap contribute.
var severeSymptoms = []symptomWeight{
	{"chest pain", 15},
	{"shortness of breath", 15},
	{"difficulty breathing", 15},
	{"severe pain", 15},
	{"confusion", 15},
	{"fainting", 15},
	{"loss of consciousness", 15},
	{"seizure", 15},
	{"stroke", 15},
	{"suicidal", 15},
	{"self-harm", 15},
	{"bleeding heavily", 15},
	{"vomiting blood", 15},
	{"blood in stool", 12},
	{"severe headache", 12},
	{"high fever", 10},
	{"dizziness", 8},
	{"numbness", 8},
	{"weakness", 8},
	{"swelling", 8},
}

const symptomCap = 45

var nonAdherenceCues = []string{
	"can't afford", "cannot afford", "too expensive", "cost",
	"forget", "forgot", "don't remember", "skip",
	"confused about", "don't understand", "not sure how",
	"stopped taking", "quit taking", "ran out",
	"side effects", "makes me sick", "don't want to take",
}

const nonAdherencePoints = 10

const (
	firstMedicationPoints = 8
	extraMedicationPoints = 5
	maxCountedMedications = 3
	multiDiagnosisPoints  = 12
	urgentFollowUpPoints  = 15
	testsOrderedPoints    = 5
	advancedTestPoints    = 10
	referralPoints        = 5
	specialistPoints      = 10
	abnormalVitalsPoints  = 10
	mentalHealthPoints    = 8
)

// Whole-word terms. "er" must not match inside "later".
var urgentTimelineTerms = []string{
	"emergency", "er", "urgent", "immediately", "asap",
	"1 week", "one week", "3 days", "2 days", "tomorrow",
}

var advancedTestTerms = []string{
	"mri", "ct scan", "ct", "pet scan", "pet", "angiogram",
	"echocardiogram", "biopsy", "colonoscopy", "endoscopy",
}

var referralCues = []string{"refer", "referral", "referred", "specialist"}

var specialistTerms = []string{
	"cardiologist", "oncologist", "neurologist", "surgeon", "pulmonologist",
	"nephrologist", "psychiatrist", "endocrinologist", "rheumatologist",
	"gastroenterologist",
}

var abnormalVitalTerms = []string{
	"elevated", "high", "low", "abnormal", "irregular",
	"tachycardia", "bradycardia", "hypertension", "hypotension",
}

// Category groups red-flag keywords.
type Category string

const (
	CategoryEmergencySymptom   Category = "emergency_symptom"
	CategoryInjuryTrauma       Category = "injury_trauma"
	CategoryDrugInteraction    Category = "drug_interaction"
	CategoryAdherenceBarrier   Category = "adherence_barrier"
	CategoryWorseningCondition Category = "worsening_condition"
	CategoryMentalHealth       Category = "mental_health"
)

type redFlagRule struct {
	category Category
	keywords []string
}

// redFlagRules is ordered; flags are emitted category by category.
var redFlagRules = []redFlagRule{
	{CategoryEmergencySymptom, []string{
		"chest pain", "difficulty breathing", "shortness of breath",
		"stroke symptoms", "severe allergic reaction", "anaphylaxis",
		"suicidal ideation", "suicidal thoughts", "want to hurt",
		"loss of consciousness", "seizure",
	}},
	{CategoryInjuryTrauma, []string{
		"fell", "fall", "fracture", "broken bone", "head injury", "injury",
		"trauma", "car accident", "concussion", "dislocation", "sprain",
	}},
	{CategoryDrugInteraction, []string{
		"drug interaction", "interact with", "contraindicated",
		"don't mix", "shouldn't take together",
	}},
	{CategoryAdherenceBarrier, []string{
		"can't afford", "cannot afford", "too expensive",
		"no insurance", "lost insurance", "can't get to",
		"transportation", "no ride", "pharmacy closed",
	}},
	{CategoryWorseningCondition, []string{
		"getting worse", "not improving", "worsening",
		"no improvement", "symptoms worse", "pain increased",
		"more frequent", "spreading",
	}},
	{CategoryMentalHealth, mentalHealthKeywords},
}

var mentalHealthKeywords = []string{
	"depressed", "depression", "anxiety", "panic attack",
	"can't sleep", "insomnia", "stressed", "overwhelmed",
	"hopeless", "suicidal",
}

var recommendedActions = map[Category]string{
	CategoryEmergencySymptom:   "Seek immediate medical attention or call 911",
	CategoryInjuryTrauma:       "Assess injury severity and consider imaging",
	CategoryDrugInteraction:    "Review medication list with pharmacist or provider",
	CategoryAdherenceBarrier:   "Discuss patient assistance programs or generic alternatives",
	CategoryWorseningCondition: "Schedule urgent follow-up appointment",
	CategoryMentalHealth:       "Screen with PHQ-9/GAD-7 and consider referral",
}

const defaultAction = "Review with care team"

// RecommendedAction returns the fixed follow-up advice for category.
func RecommendedAction(c Category) string {
	if a, ok := recommendedActions[c]; ok {
		return a
	}
	return defaultAction
}

// SeverityFor returns [SeverityHigh] for emergency, injury and interaction
// flags and [SeverityMedium] for everything else.
func SeverityFor(c Category) Severity {
	switch c {
	case CategoryEmergencySymptom, CategoryInjuryTrauma, CategoryDrugInteraction:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
