package psa

import (
	"fmt"
	"strconv"
	"strings"
)

var booleanFields = map[string]bool{
	"name_changed":          true,
	"district_changed":      true,
	"acknowledgment":        true,
	"tax_status_nonprofit":  true,
	"tax_status_for_profit": true,
	"tax_status_exempt":     true,
}

var numericFields = func() map[string]bool {
	out := map[string]bool{"full_time_staff": true, "part_time_staff": true, "administrators": true}
	for _, field := range EnrollmentFields {
		out[field] = true
	}
	return out
}()

// Clean keeps only known fields and normalizes their types: yes/no answers
// become JSON booleans, counts become numbers, text is trimmed. Fields that
// do not apply (a previous name when the name has not changed) are dropped.
func Clean(f Form) Form {
	out := Form{}
	for _, field := range KnownFields() {
		value, ok := f[field]
		if !ok || value == nil {
			continue
		}
		switch {
		case booleanFields[field]:
			if b, ok := f.Choice(field); ok {
				out[field] = b
			}
		case numericFields[field]:
			if n, ok := f.Number(field); ok {
				out[field] = n
			}
		default:
			if text := f.String(field); text != "" {
				out[field] = text
			}
		}
	}
	if !out.IsTrue("name_changed") {
		delete(out, "previous_name")
	}
	if !out.IsTrue("district_changed") {
		delete(out, "previous_district")
	}
	return out
}

// Entry is one label/value row of the read-only preview.
type Entry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Section is one titled block of the read-only preview.
type Section struct {
	Title   string  `json:"title"`
	Entries []Entry `json:"entries"`
}

// Sections lays the form out for the print preview, one section per step.
func Sections(f Form) []Section {
	records := recordsContact(f)
	sections := []Section{
		{Title: "School Information", Entries: []Entry{
			{"School name", f.String("school_name")},
			{"County", f.String("county")},
			{"School district", f.String("district")},
			{"CDS code", f.String("cds_code")},
		}},
		{Title: "School Address", Entries: []Entry{
			{"Street address", f.String("street_address")},
			{"City", f.String("city")},
			{"ZIP code", f.String("zip_code")},
			{"Phone number", f.String("phone_number")},
			{"Mailing address", joinNonBlank(", ", f.String("mailing_address"), f.String("mailing_city"), f.String("mailing_zip"))},
		}},
		{Title: "Site Administrator", Entries: []Entry{
			{"Name", joinNonBlank(" ", f.String("site_admin_first_name"), f.String("site_admin_last_name"))},
			{"Title", f.String("site_admin_title")},
			{"Address", f.String("site_admin_address")},
			{"Phone", f.String("site_admin_phone")},
			{"Email", f.String("site_admin_email")},
		}},
		{Title: "School History", Entries: []Entry{
			{labels["name_changed"], yesNo(f, "name_changed")},
			{labels["previous_name"], conditional(f, "name_changed", "previous_name")},
			{labels["district_changed"], yesNo(f, "district_changed")},
			{labels["previous_district"], conditional(f, "district_changed", "previous_district")},
		}},
		{Title: "Enrollment", Entries: enrollmentEntries(f)},
		{Title: "Staff", Entries: []Entry{
			{"Full-time staff", f.String("full_time_staff")},
			{"Part-time staff", f.String("part_time_staff")},
			{"Administrators", f.String("administrators")},
		}},
		{Title: "Records Contact", Entries: []Entry{
			{"Name", records.Name},
			{"Address", records.Address},
			{"Phone", records.Phone},
		}},
		{Title: "Tax Status & Acknowledgment", Entries: []Entry{
			{"Tax status", taxStatusLabel(f)},
			{"Acknowledged", yesNo(f, "acknowledgment")},
		}},
	}
	return sections
}

// RecordsContact is the effective records contact after site-admin fallback.
type RecordsContact struct {
	Name    string
	Address string
	Phone   string
}

func recordsContact(f Form) RecordsContact {
	contact := RecordsContact{
		Name:    f.String("records_contact_name"),
		Address: f.String("records_contact_address"),
		Phone:   f.String("records_contact_phone"),
	}
	if contact.Name == "" {
		contact.Name = joinNonBlank(" ", f.String("site_admin_first_name"), f.String("site_admin_last_name"))
	}
	if contact.Address == "" {
		contact.Address = f.String("site_admin_address")
	}
	if contact.Phone == "" {
		contact.Phone = f.String("site_admin_phone")
	}
	return contact
}

func enrollmentEntries(f Form) []Entry {
	entries := make([]Entry, 0, len(EnrollmentFields)+1)
	total := 0.0
	for _, field := range EnrollmentFields {
		n, ok := f.Number(field)
		if !ok || n <= 0 {
			continue
		}
		total += n
		grade := strings.TrimPrefix(field, "enrollment_")
		label := "Grade " + grade
		if grade == "k" {
			label = "Kindergarten"
		}
		entries = append(entries, Entry{label, strconv.FormatFloat(n, 'f', -1, 64)})
	}
	entries = append(entries, Entry{"Total", strconv.FormatFloat(total, 'f', -1, 64)})
	return entries
}

func taxStatusLabel(f Form) string {
	names := map[string]string{
		"tax_status_nonprofit":  "Nonprofit",
		"tax_status_for_profit": "For profit",
		"tax_status_exempt":     "Tax exempt",
	}
	set := make([]string, 0, len(TaxStatusFields))
	for _, field := range TaxStatusFields {
		if f.IsTrue(field) {
			set = append(set, names[field])
		}
	}
	return strings.Join(set, ", ")
}

func yesNo(f Form, field string) string {
	value, ok := f.Choice(field)
	if !ok {
		return ""
	}
	if value {
		return "Yes"
	}
	return "No"
}

func conditional(f Form, flag, field string) string {
	if !f.IsTrue(flag) {
		return "N/A"
	}
	return f.String(field)
}

func joinNonBlank(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, sep)
}

// AttachmentName is the file name used for the generated affidavit PDF.
func AttachmentName(f Form) string {
	name := f.String("school_name")
	if name == "" {
		name = "school"
	}
	year := f.String("school_year")
	if year == "" {
		return fmt.Sprintf("PSA_%s.pdf", name)
	}
	return fmt.Sprintf("PSA_%s_%s.pdf", name, year)
}
