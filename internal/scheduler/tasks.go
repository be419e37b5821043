package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadInboxProcess = "leads.inbox.process"

const (
	TriggerLeadReceived = "lead_received"
	TriggerManual       = "manual"
)

// LeadInboxProcessPayload asks a worker to run one lead inbox pass. The payload is
// constant per trigger so asynq.Unique collapses bursts into a single task.
type LeadInboxProcessPayload struct {
	Trigger string `json:"trigger"`
}

func NewLeadInboxProcessTask(payload LeadInboxProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadInboxProcess, data), nil
}

func ParseLeadInboxProcessPayload(task *asynq.Task) (LeadInboxProcessPayload, error) {
	var payload LeadInboxProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadInboxProcessPayload{}, err
	}
	return payload, nil
}
