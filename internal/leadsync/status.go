package leadsync

import "github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/forms"

// Qualification outcomes derived from the event's pass/fail flag.
const (
	QualificationApproved = "approved"
	QualificationRejected = "rejected"
)

// Pipeline statuses, the human-facing stage labels.
const (
	PipelineNew       = "novo-lead"
	PipelineSent      = "formulario-enviado"
	PipelineOpened    = "formulario-aberto"
	PipelineStarted   = "formulario-iniciado"
	PipelineCompleted = "formulario-completo"
	PipelineApproved  = "formulario-aprovado"
	PipelineRejected  = "formulario-reprovado"
)

// QualificationFromEvent derives the qualification outcome from the
// event's pass/fail flag. An unset flag means no outcome yet.
func QualificationFromEvent(passed *bool) string {
	if passed == nil {
		return ""
	}
	if *passed {
		return QualificationApproved
	}
	return QualificationRejected
}

// DerivePipelineStatus maps form progress and qualification outcome to one
// pipeline stage. The qualification outcome takes priority over raw form
// progress; unknown progress values fall back to the initial stage instead
// of erroring.
func DerivePipelineStatus(formStatus, qualification string) string {
	switch qualification {
	case QualificationApproved:
		return PipelineApproved
	case QualificationRejected:
		return PipelineRejected
	}

	switch formStatus {
	case forms.StatusNotSent:
		return PipelineNew
	case forms.StatusSent:
		return PipelineSent
	case forms.StatusOpened:
		return PipelineOpened
	case forms.StatusStarted:
		return PipelineStarted
	case forms.StatusCompleted:
		return PipelineCompleted
	default:
		return PipelineNew
	}
}
