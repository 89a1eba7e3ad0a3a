package domain

// Resume block types
const (
	BlockEmployment   = "EMPLOYMENT"
	BlockEducation    = "EDUCATION"
	BlockSocialLinks  = "SOCIAL_LINKS"
	BlockSkills       = "SKILLS"
	BlockProSummary   = "PROFESSIONAL_SUMMARY"
	DefaultBlockCount = 2
)

// ResumeItem is one entry of a resume block
type ResumeItem struct {
	Fields map[string]any `json:"fields"`
}

// ResumeBlock is a typed section of a resume
type ResumeBlock struct {
	Type  string       `json:"type"`
	Items []ResumeItem `json:"items"`
}

// ResumeContent is the selected resume as stored for a user
type ResumeContent struct {
	ID      string            `json:"id"`
	Details map[string]string `json:"details"`
	Blocks  []ResumeBlock     `json:"blocks"`
}

// Block returns the first block of the given type
func (r *ResumeContent) Block(blockType string) (*ResumeBlock, bool) {
	for i := range r.Blocks {
		if r.Blocks[i].Type == blockType {
			return &r.Blocks[i], true
		}
	}
	return nil, false
}

// BlockCounts returns the education and experience item counts used to
// decide how many repeated sections to reveal on a form. Blocks are found
// by type, then by position (experience first, education second), and
// default to DefaultBlockCount when absent.
func (r *ResumeContent) BlockCounts() (education, experience int) {
	education, experience = DefaultBlockCount, DefaultBlockCount
	if r == nil || len(r.Blocks) == 0 {
		return education, experience
	}

	if b, ok := r.Block(BlockEducation); ok {
		education = len(b.Items)
	} else if len(r.Blocks) > 1 {
		education = len(r.Blocks[1].Items)
	}

	if b, ok := r.Block(BlockEmployment); ok {
		experience = len(b.Items)
	} else {
		experience = len(r.Blocks[0].Items)
	}

	return education, experience
}
