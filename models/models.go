package models

// VisitRequest represents the incoming request body.
// Fields are pointers so that an absent field can be told apart from an empty one.
type VisitRequest struct {
	PatientName *string `json:"patient_name"`
	DateOfVisit *string `json:"date_of_visit"`
	Notes       *string `json:"notes"`
}

// ErrorResponse is the JSON body returned for every non-streamed failure.
type ErrorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
