package domain

import (
	"bytes"
	"time"

	"gorm.io/datatypes"
)

// SectionAnswer is one party's answer set for one section of an assignment.
type SectionAnswer struct {
	ID           string         `gorm:"type:char(36);primaryKey"`
	AssignmentID string         `gorm:"type:char(36);not null;uniqueIndex:idx_answer_slot"`
	SectionID    string         `gorm:"type:char(36);not null;uniqueIndex:idx_answer_slot"`
	Role         CompletionRole `gorm:"type:varchar(20);not null;uniqueIndex:idx_answer_slot"`
	Payload      datatypes.JSON `gorm:"not null"`
	AnsweredBy   string         `gorm:"type:char(36);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Answer is the payload of one party for one section.
type Answer struct {
	Payload    datatypes.JSON `json:"payload"`
	AnsweredBy string         `json:"answered_by"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RoleAnswers keys answers by the responding party.
type RoleAnswers map[CompletionRole]Answer

// QuestionnaireResponse is the response document of an assignment: per section
// id, per responder role, an answer.
type QuestionnaireResponse struct {
	AssignmentID string                 `json:"assignment_id"`
	Sections     map[string]RoleAnswers `json:"sections"`
}

// BuildResponse assembles the response document from stored answers.
func BuildResponse(assignmentID string, answers []SectionAnswer) QuestionnaireResponse {
	resp := QuestionnaireResponse{
		AssignmentID: assignmentID,
		Sections:     make(map[string]RoleAnswers),
	}
	for _, a := range answers {
		ra, ok := resp.Sections[a.SectionID]
		if !ok {
			ra = make(RoleAnswers)
			resp.Sections[a.SectionID] = ra
		}
		ra[a.Role] = Answer{Payload: a.Payload, AnsweredBy: a.AnsweredBy, UpdatedAt: a.UpdatedAt}
	}
	return resp
}

func (a Answer) clone() Answer {
	out := a
	if a.Payload != nil {
		out.Payload = bytes.Clone(a.Payload)
	}
	return out
}

func (ra RoleAnswers) clone() RoleAnswers {
	out := make(RoleAnswers, len(ra))
	for role, ans := range ra {
		out[role] = ans.clone()
	}
	return out
}

// Clone returns a deep copy; payload bytes are not shared.
func (r QuestionnaireResponse) Clone() QuestionnaireResponse {
	out := QuestionnaireResponse{
		AssignmentID: r.AssignmentID,
		Sections:     make(map[string]RoleAnswers, len(r.Sections)),
	}
	for id, ra := range r.Sections {
		out.Sections[id] = ra.clone()
	}
	return out
}
