package psa

// Requirement is one required entry of a wizard step. Validate, when set,
// replaces the plain "field is filled" check.
type Requirement struct {
	Field    string
	Label    string
	Validate func(Form) bool
}

// Step groups the requirements shown on one page of the wizard.
type Step struct {
	Number       int
	Title        string
	Requirements []Requirement
}

// RequiredFields drives the completion percentage. The enrollment and
// tax-status aggregates are counted separately.
var RequiredFields = []string{
	"school_name",
	"county",
	"district",
	"street_address",
	"city",
	"zip_code",
	"phone_number",
	"site_admin_first_name",
	"site_admin_last_name",
	"site_admin_address",
	"site_admin_phone",
	"name_changed",
	"district_changed",
	"full_time_staff",
	"acknowledgment",
}

var EnrollmentFields = []string{
	"enrollment_k",
	"enrollment_1",
	"enrollment_2",
	"enrollment_3",
	"enrollment_4",
	"enrollment_5",
	"enrollment_6",
	"enrollment_7",
	"enrollment_8",
	"enrollment_9",
	"enrollment_10",
	"enrollment_11",
	"enrollment_12",
}

var TaxStatusFields = []string{
	"tax_status_nonprofit",
	"tax_status_for_profit",
	"tax_status_exempt",
}

// OptionalFields are accepted and kept but never required.
var OptionalFields = []string{
	"cds_code",
	"state",
	"mailing_address",
	"mailing_city",
	"mailing_zip",
	"website",
	"site_admin_title",
	"site_admin_email",
	"previous_name",
	"previous_district",
	"part_time_staff",
	"administrators",
	"records_contact_name",
	"records_contact_address",
	"records_contact_phone",
	"school_year",
	"email",
}

// Steps is the wizard layout, in order.
var Steps = []Step{
	{
		Number: 1,
		Title:  "School Information",
		Requirements: []Requirement{
			{Field: "school_name", Label: "School name"},
			{Field: "county", Label: "County"},
			{Field: "district", Label: "School district"},
		},
	},
	{
		Number: 2,
		Title:  "School Address",
		Requirements: []Requirement{
			{Field: "street_address", Label: "Street address"},
			{Field: "city", Label: "City"},
			{Field: "zip_code", Label: "ZIP code"},
			{Field: "phone_number", Label: "Phone number"},
		},
	},
	{
		Number: 3,
		Title:  "Site Administrator",
		Requirements: []Requirement{
			{Field: "site_admin_first_name", Label: "Administrator first name"},
			{Field: "site_admin_last_name", Label: "Administrator last name"},
			{Field: "site_admin_address", Label: "Administrator address"},
			{Field: "site_admin_phone", Label: "Administrator phone"},
		},
	},
	{
		Number: 4,
		Title:  "School History",
		Requirements: []Requirement{
			{Field: "name_changed", Label: "Has the school name changed?", Validate: explicitChoice("name_changed")},
			{Field: "previous_name", Label: "Previous school name", Validate: requiredWhenTrue("name_changed", "previous_name")},
			{Field: "district_changed", Label: "Has the school district changed?", Validate: explicitChoice("district_changed")},
			{Field: "previous_district", Label: "Previous school district", Validate: requiredWhenTrue("district_changed", "previous_district")},
		},
	},
	{
		Number: 5,
		Title:  "Enrollment",
		Requirements: []Requirement{
			{Field: "enrollment", Label: "At least one enrolled student", Validate: HasEnrollment},
		},
	},
	{
		Number: 6,
		Title:  "Staff",
		Requirements: []Requirement{
			{Field: "full_time_staff", Label: "Full-time staff count"},
		},
	},
	{
		Number: 7,
		Title:  "Records Contact",
		Requirements: []Requirement{
			{Field: "records_contact_name", Label: "Records contact name", Validate: withFallback("records_contact_name", "site_admin_first_name", "site_admin_last_name")},
			{Field: "records_contact_address", Label: "Records contact address", Validate: withFallback("records_contact_address", "site_admin_address")},
			{Field: "records_contact_phone", Label: "Records contact phone", Validate: withFallback("records_contact_phone", "site_admin_phone")},
		},
	},
	{
		Number: 8,
		Title:  "Tax Status & Acknowledgment",
		Requirements: []Requirement{
			{Field: "tax_status", Label: "Tax status", Validate: HasTaxStatus},
			{Field: "acknowledgment", Label: "Acknowledgment of the affidavit terms", Validate: func(f Form) bool { return f.IsTrue("acknowledgment") }},
		},
	},
}

// fieldChecks overrides the plain filled check for required fields whose
// value is a yes/no answer.
var fieldChecks = map[string]func(Form) bool{
	"name_changed":     explicitChoice("name_changed"),
	"district_changed": explicitChoice("district_changed"),
	"acknowledgment":   func(f Form) bool { return f.IsTrue("acknowledgment") },
}

func explicitChoice(field string) func(Form) bool {
	return func(f Form) bool {
		_, ok := f.Choice(field)
		return ok
	}
}

func requiredWhenTrue(flag, field string) func(Form) bool {
	return func(f Form) bool {
		if !f.IsTrue(flag) {
			return true
		}
		return f.Filled(field)
	}
}

// withFallback accepts the field itself or, when it is blank, every one of
// the site-administrator fields it defaults to.
func withFallback(field string, fallbacks ...string) func(Form) bool {
	return func(f Form) bool {
		if f.Filled(field) {
			return true
		}
		for _, fallback := range fallbacks {
			if !f.Filled(fallback) {
				return false
			}
		}
		return true
	}
}

// HasEnrollment reports whether any grade has at least one enrolled student.
func HasEnrollment(f Form) bool {
	for _, field := range EnrollmentFields {
		if n, ok := f.Number(field); ok && n > 0 {
			return true
		}
	}
	return false
}

// HasTaxStatus reports whether any tax-status flag is set.
func HasTaxStatus(f Form) bool {
	for _, field := range TaxStatusFields {
		if f.IsTrue(field) {
			return true
		}
	}
	return false
}

// KnownFields lists every field the form accepts.
func KnownFields() []string {
	fields := make([]string, 0, len(RequiredFields)+len(EnrollmentFields)+len(TaxStatusFields)+len(OptionalFields))
	fields = append(fields, RequiredFields...)
	fields = append(fields, EnrollmentFields...)
	fields = append(fields, TaxStatusFields...)
	fields = append(fields, OptionalFields...)
	return fields
}

var labels = func() map[string]string {
	out := map[string]string{}
	for _, step := range Steps {
		for _, req := range step.Requirements {
			out[req.Field] = req.Label
		}
	}
	return out
}()
