package domain

import "time"

// ReviewAction 审核审计记录，只追加不修改
type ReviewAction struct {
	ID              string    `json:"id"`
	TransactionID   string    `json:"transaction_id"`
	ActorID         string    `json:"actor_id"`
	Action          Action    `json:"action"`
	FromStatus      Status    `json:"from_status"`
	ResultingStatus Status    `json:"resulting_status"`
	CreatedAt       time.Time `json:"created_at"`
}
