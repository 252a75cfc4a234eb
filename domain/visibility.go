package domain

import (
	"github.com/sirupsen/logrus"
)

// FullTransparency reports whether viewer sees every answer of every section
// in the given state.
func FullTransparency(state WorkflowState, viewer CompletionRole) bool {
	if state.IsPostReview() {
		return true
	}
	return state == StateInReview && viewer == CompletionManager
}

// FilterResponse returns the part of resp that viewer may see. viewer is the
// responder the requester acts as: CompletionEmployee for the assignment's
// employee, CompletionManager for manager-tier requesters. resp is never
// mutated; the result shares no memory with it.
//
// Sections missing from sections or carrying an unknown completion role are
// left out and logged.
func FilterResponse(log logrus.FieldLogger, state WorkflowState, viewer CompletionRole, sections []QuestionSection, resp QuestionnaireResponse) QuestionnaireResponse {
	if FullTransparency(state, viewer) {
		return resp.Clone()
	}

	out := QuestionnaireResponse{
		AssignmentID: resp.AssignmentID,
		Sections:     make(map[string]RoleAnswers),
	}
	if !viewer.IsResponder() {
		return out
	}

	byID := make(map[string]QuestionSection, len(sections))
	for _, s := range sections {
		byID[s.ID] = s
	}

	for sectionID, answers := range resp.Sections {
		section, ok := byID[sectionID]
		if !ok {
			log.WithFields(logrus.Fields{
				"assignment_id": resp.AssignmentID,
				"section_id":    sectionID,
			}).Warn("skipping answers for section missing from template")
			continue
		}
		role, err := ParseCompletionRole(string(section.CompletionRole))
		if err != nil {
			log.WithFields(logrus.Fields{
				"assignment_id": resp.AssignmentID,
				"section_id":    sectionID,
				"error":         err,
			}).Warn("skipping section with unknown completion role")
			continue
		}

		switch role {
		case CompletionBoth:
			own := make(RoleAnswers, 1)
			if ans, ok := answers[viewer]; ok {
				own[viewer] = ans.clone()
			}
			out.Sections[sectionID] = own
		case viewer:
			out.Sections[sectionID] = answers.clone()
		}
	}
	return out
}

// VisibleSections returns the sections viewer may see in the given state,
// in the same order. Unknown completion roles are dropped.
func VisibleSections(state WorkflowState, viewer CompletionRole, sections []QuestionSection) []QuestionSection {
	full := FullTransparency(state, viewer)
	out := make([]QuestionSection, 0, len(sections))
	for _, s := range sections {
		role, err := ParseCompletionRole(string(s.CompletionRole))
		if err != nil {
			continue
		}
		if full || role == CompletionBoth || role == viewer {
			out = append(out, s)
		}
	}
	return out
}
