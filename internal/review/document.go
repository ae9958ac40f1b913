package review

// BlockKind is the type of a document block
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
	BlockChange    BlockKind = "change"
)

// ChangeAction is the kind of tracked change
type ChangeAction string

const (
	ChangeAddition     ChangeAction = "addition"
	ChangeRemoval      ChangeAction = "removal"
	ChangeModification ChangeAction = "modification"
)

// Change is a tracked edit. Modifications carry Original and Revised, the
// other actions carry Text.
type Change struct {
	Action   ChangeAction
	Text     string
	Original string
	Revised  string
	Comment  string
}

// ListItem is either plain text or a tracked change
type ListItem struct {
	Text   string
	Change *Change
}

// Block is one element of a document section
type Block struct {
	Kind   BlockKind
	Text   string     // paragraph
	Items  []ListItem // list
	Change *Change    // change
}

// DocumentSection is a titled run of blocks
type DocumentSection struct {
	ID     string
	Title  string
	Blocks []Block
}

// Document is the contract shown in the viewer
type Document struct {
	Name         string
	LastModified string
	Pages        int
	Words        int
	Changes      int
	Comments     int
	Sections     []DocumentSection
}

// SampleDocument returns the statement of work shown in the review workspace.
func SampleDocument() Document {
	return Document{
		Name:         "Digital_Transformation_SOW_v2.3.docx",
		LastModified: "2 hours ago",
		Pages:        12,
		Words:        3247,
		Changes:      47,
		Comments:     12,
		Sections: []DocumentSection{
			{
				ID:    "section-1",
				Title: "1. Statement of Work",
				Blocks: []Block{
					{Kind: BlockParagraph, Text: `This Statement of Work ("SOW") sets forth the terms and conditions under which Contractor will provide services to Client for the development and implementation of a comprehensive digital transformation platform.`},
					{Kind: BlockChange, Change: &Change{
						Action:  ChangeAddition,
						Text:    "The platform shall include AI-powered analytics capabilities and real-time data processing features as specified in Appendix A.",
						Comment: "Added per client requirements - aligns with industry standards",
					}},
					{Kind: BlockParagraph, Text: "The project scope includes system architecture, development, testing, deployment, and initial training for Client personnel."},
				},
			},
			{
				ID:    "section-2",
				Title: "2. Deliverables and Timeline",
				Blocks: []Block{
					{Kind: BlockParagraph, Text: "Contractor shall deliver the following items according to the timeline specified below:"},
					{Kind: BlockList, Items: []ListItem{
						{Text: "Technical Requirements Document (Week 2)"},
						{Text: "System Architecture Blueprint (Week 4)"},
						{Change: &Change{
							Action:   ChangeModification,
							Original: "MVP Development (Week 12)",
							Revised:  "MVP Development with enhanced security features (Week 14)",
							Comment:  "Timeline adjusted for additional security requirements",
						}},
						{Text: "User Training Materials (Week 16)"},
						{Text: "Final Deployment (Week 18)"},
					}},
				},
			},
			{
				ID:    "section-3",
				Title: "3. Payment Terms",
				Blocks: []Block{
					{Kind: BlockParagraph, Text: "Client agrees to pay Contractor according to the following schedule:"},
					{Kind: BlockChange, Change: &Change{
						Action:  ChangeRemoval,
						Text:    "50% upon execution of this agreement, 50% upon final delivery.",
						Comment: "Replaced with milestone-based payment structure",
					}},
					{Kind: BlockChange, Change: &Change{
						Action:  ChangeAddition,
						Text:    "Payment shall be made in four equal installments of 25% each, due upon completion of the following milestones: (1) Technical Requirements approval, (2) Architecture Blueprint approval, (3) MVP delivery, and (4) Final deployment and training completion.",
						Comment: "Milestone-based payments reduce risk and align with deliverables",
					}},
				},
			},
		},
	}
}
