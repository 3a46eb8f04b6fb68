package extract

import "embed"

//go:embed prompts/*.txt
var prompts embed.FS

func mustPrompt(name string) string {
	b, err := prompts.ReadFile("prompts/" + name)
	if err != nil {
		panic("extract: missing prompt " + name)
	}
	return string(b)
}

var (
	patientSummaryPrompt = mustPrompt("patient_summary.txt")
	clinicianNotePrompt  = mustPrompt("clinician_note.txt")
)
