package prompt

import (
	"fmt"

	"visit-summary-service/visit"
)

// SystemInstruction asks the model for exactly three headed sections.
const SystemInstruction = `
You are provided with notes written by a doctor from a patient's visit.
Your job is to summarize the visit for the doctor and provide an email.
Reply with exactly three sections with the headings:
### Summary of visit for the doctor's records
### Next steps for the doctor
### Draft of email to patient in patient-friendly language
`

const userTemplate = `Create the summary, next steps and draft email for:
Patient Name: %s
Date of Visit: %s
Notes:
%s`

// Pair is the system and user instruction sent to the model.
type Pair struct {
	System string
	User   string
}

// UserInstruction renders the per-visit instruction.
func UserInstruction(record visit.Record) string {
	return fmt.Sprintf(userTemplate, record.PatientName, record.DateOfVisit, record.Notes)
}

// Compose builds the prompt pair for a validated visit.
func Compose(record visit.Record) Pair {
	return Pair{
		System: SystemInstruction,
		User:   UserInstruction(record),
	}
}
