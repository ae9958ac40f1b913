package review

import "strings"

// SectionStatus is the review state of an outline node
type SectionStatus string

const (
	StatusComplete SectionStatus = "complete"
	StatusWarning  SectionStatus = "warning"
	StatusPending  SectionStatus = "pending"
)

// Section is a node of the document outline
type Section struct {
	ID       string
	Title    string
	Level    int
	Status   SectionStatus
	Changes  int
	Children []Section
	Expanded bool
}

// DefaultExpanded lists the sections open when the page loads
var DefaultExpanded = []string{"1", "2"}

// Outline returns the document outline with DefaultExpanded applied.
func Outline() []Section {
	sections := []Section{
		{
			ID: "1", Title: "Project Overview & Scope", Level: 1, Status: StatusComplete, Changes: 3,
			Children: []Section{
				{ID: "1.1", Title: "Statement of Work", Level: 2, Status: StatusComplete},
				{ID: "1.2", Title: "Deliverables", Level: 2, Status: StatusWarning, Changes: 2},
				{ID: "1.3", Title: "Timeline", Level: 2, Status: StatusComplete},
			},
		},
		{
			ID: "2", Title: "Terms & Conditions", Level: 1, Status: StatusWarning, Changes: 7,
			Children: []Section{
				{ID: "2.1", Title: "Payment Terms", Level: 2, Status: StatusPending, Changes: 3},
				{ID: "2.2", Title: "Intellectual Property", Level: 2, Status: StatusComplete},
				{ID: "2.3", Title: "Data Protection", Level: 2, Status: StatusWarning, Changes: 4},
			},
		},
		{
			ID: "3", Title: "Risk & Compliance", Level: 1, Status: StatusComplete,
			Children: []Section{
				{ID: "3.1", Title: "Liability Clauses", Level: 2, Status: StatusComplete},
				{ID: "3.2", Title: "Insurance Requirements", Level: 2, Status: StatusComplete},
			},
		},
	}

	for i := range sections {
		for _, id := range DefaultExpanded {
			if sections[i].ID == id {
				sections[i].Expanded = true
			}
		}
	}
	return sections
}

// OutlineCounts summarizes review progress over every outline node
type OutlineCounts struct {
	Complete int
	Pending  int // warning or pending
}

// CountOutline walks the outline, children included.
func CountOutline(sections []Section) OutlineCounts {
	var c OutlineCounts
	var walk func([]Section)
	walk = func(nodes []Section) {
		for _, s := range nodes {
			if s.Status == StatusComplete {
				c.Complete++
			} else {
				c.Pending++
			}
			walk(s.Children)
		}
	}
	walk(sections)
	return c
}

// SearchOutline keeps the sections whose title contains query
// (case-insensitive). A parent is kept, expanded, when any child matches;
// then only the matching children are kept unless the parent matches itself.
func SearchOutline(sections []Section, query string) []Section {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return sections
	}

	var out []Section
	for _, s := range sections {
		selfMatch := strings.Contains(strings.ToLower(s.Title), query)
		children := SearchOutline(s.Children, query)
		if !selfMatch && len(children) == 0 {
			continue
		}
		if !selfMatch {
			s.Children = children
		}
		s.Expanded = s.Expanded || len(children) > 0
		out = append(out, s)
	}
	return out
}
