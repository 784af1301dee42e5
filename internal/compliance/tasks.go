package compliance

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskComplianceCheck = "compliance.check"

// CheckPayload identifies one compliance check against the external
// provider.
type CheckPayload struct {
	CPF      string `json:"cpf"`
	TenantID string `json:"tenantId"`
	LeadID   string `json:"leadId"`
	EventID  string `json:"eventId"`
	ForceNew bool   `json:"forceNew,omitempty"`
}

func NewCheckTask(payload CheckPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskComplianceCheck, data), nil
}

func ParseCheckPayload(task *asynq.Task) (CheckPayload, error) {
	var payload CheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CheckPayload{}, err
	}
	return payload, nil
}
