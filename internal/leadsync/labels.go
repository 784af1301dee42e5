package leadsync

import "github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/forms"

// ResolveLabel picks a label id for the given form status and qualification
// outcome using three-tier matching, in strict priority order:
//
//  1. exact match on (formStatus, qualificationStatus)
//  2. partial match on formStatus where the label's qualification is unset
//  3. the default label for the initial form-progress state
//
// Returns nil when no tier matches; reconciliation then proceeds without a
// label rather than failing.
func ResolveLabel(labels []Label, formStatus, qualification string) *string {
	// Tier 1: exact (formStatus, qualification).
	if qualification != "" {
		for _, label := range labels {
			if !label.Active {
				continue
			}
			if label.FormStatus == formStatus &&
				label.QualificationStatus != nil &&
				*label.QualificationStatus == qualification {
				id := label.ID
				return &id
			}
		}
	}

	// Tier 2: formStatus with qualification unset on the label.
	for _, label := range labels {
		if !label.Active {
			continue
		}
		if label.FormStatus == formStatus && label.QualificationStatus == nil {
			id := label.ID
			return &id
		}
	}

	// Tier 3: the designated default for the initial form-progress state.
	for _, label := range labels {
		if !label.Active {
			continue
		}
		if label.FormStatus == forms.StatusNotSent && label.QualificationStatus == nil {
			id := label.ID
			return &id
		}
	}

	return nil
}
