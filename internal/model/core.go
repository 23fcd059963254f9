package model

import "time"

// SourceRow is one parsed CSV line keyed by header name.
// Missing trailing fields map to the empty string.
type SourceRow map[string]string

// CanonicalRecord is the normalized enrollment record persisted to the store.
// Email is the natural key.
type CanonicalRecord struct {
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	Department      string     `json:"department"`
	HiringManager   string     `json:"hiring_manager"`
	CourseName      string     `json:"course_name"`
	PreparedToPass  string     `json:"prepared_to_pass"`
	TimeSpent       string     `json:"time_spent"`
	DateEnrolled    *time.Time `json:"date_enrolled,omitempty"`
	LastLogin       *time.Time `json:"last_login,omitempty"`
	DateCompleted   *time.Time `json:"date_completed,omitempty"`
	PercentComplete *float64   `json:"percent_complete,omitempty"`
	PercentPrep     *float64   `json:"percent_prep,omitempty"`
	PercentSim      *float64   `json:"percent_sim,omitempty"`
}

// FieldMapping names the CSV header feeding each canonical field.
type FieldMapping struct {
	Email           string `json:"email" mapstructure:"email"`
	FirstName       string `json:"first_name" mapstructure:"first_name"`
	LastName        string `json:"last_name" mapstructure:"last_name"`
	Phone           string `json:"phone" mapstructure:"phone"`
	Department      string `json:"department" mapstructure:"department"`
	HiringManager   string `json:"hiring_manager" mapstructure:"hiring_manager"`
	CourseName      string `json:"course_name" mapstructure:"course_name"`
	PreparedToPass  string `json:"prepared_to_pass" mapstructure:"prepared_to_pass"`
	TimeSpent       string `json:"time_spent" mapstructure:"time_spent"`
	DateEnrolled    string `json:"date_enrolled" mapstructure:"date_enrolled"`
	LastLogin       string `json:"last_login" mapstructure:"last_login"`
	DateCompleted   string `json:"date_completed" mapstructure:"date_completed"`
	PercentComplete string `json:"percent_complete" mapstructure:"percent_complete"`
	PercentPrep     string `json:"percent_prep" mapstructure:"percent_prep"`
	PercentSim      string `json:"percent_sim" mapstructure:"percent_sim"`
}

// DefaultFieldMapping returns the header names of the course provider's export.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		Email:           "EmailAddress",
		FirstName:       "FirstName",
		LastName:        "LastName",
		Phone:           "Phone",
		Department:      "Department",
		HiringManager:   "HiringManager",
		CourseName:      "Course",
		PreparedToPass:  "Prepared to Pass",
		TimeSpent:       "TimeSpent",
		DateEnrolled:    "DateEnrolled",
		LastLogin:       "LastLoggedIn",
		DateCompleted:   "PLE DateCompleted",
		PercentComplete: "% PLE Complete",
		PercentPrep:     "% Prep Complete",
		PercentSim:      "% Sim Complete",
	}
}

// WithDefaults fills any empty header name from DefaultFieldMapping.
func (m FieldMapping) WithDefaults() FieldMapping {
	d := DefaultFieldMapping()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&m.Email, d.Email)
	fill(&m.FirstName, d.FirstName)
	fill(&m.LastName, d.LastName)
	fill(&m.Phone, d.Phone)
	fill(&m.Department, d.Department)
	fill(&m.HiringManager, d.HiringManager)
	fill(&m.CourseName, d.CourseName)
	fill(&m.PreparedToPass, d.PreparedToPass)
	fill(&m.TimeSpent, d.TimeSpent)
	fill(&m.DateEnrolled, d.DateEnrolled)
	fill(&m.LastLogin, d.LastLogin)
	fill(&m.DateCompleted, d.DateCompleted)
	fill(&m.PercentComplete, d.PercentComplete)
	fill(&m.PercentPrep, d.PercentPrep)
	fill(&m.PercentSim, d.PercentSim)
	return m
}
