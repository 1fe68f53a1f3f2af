package domain

// DefaultDisclaimer is attached to every report unless the schema overrides it.
const DefaultDisclaimer = "This is a non-diagnostic, AI-generated intake report and is not a substitute for professional medical evaluation."

// ReportSection is one field of the structured report.
type ReportSection struct {
	Key     string `json:"key,omitempty" toml:"key,omitempty"`
	Heading string `json:"heading" toml:"heading"`
	Content string `json:"content" toml:"content"`
}

// StructuredReport is the fixed-shape intake summary produced once per interview.
type StructuredReport struct {
	Title      string          `json:"report_title" toml:"report_title"`
	Disclaimer string          `json:"safety_disclaimer" toml:"safety_disclaimer"`
	Sections   []ReportSection `json:"sections" toml:"sections"`
	Partial    bool            `json:"partial,omitempty" toml:"partial,omitempty"`
}

// Section returns the section stored under key.
func (r StructuredReport) Section(key string) (ReportSection, bool) {
	for _, s := range r.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return ReportSection{}, false
}

// Clone returns a copy that shares no slices with r.
func (r StructuredReport) Clone() StructuredReport {
	c := r
	c.Sections = make([]ReportSection, len(r.Sections))
	copy(c.Sections, r.Sections)
	return c
}
