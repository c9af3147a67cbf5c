package model

import "time"

type SwapRequestStatus string

const (
	SwapRequestStatusPending  SwapRequestStatus = "PENDING"
	SwapRequestStatusAccepted SwapRequestStatus = "ACCEPTED"
	SwapRequestStatusRejected SwapRequestStatus = "REJECTED"
)

// SwapRequest направленное предложение обмена: слот инициатора за слот получателя.
// PENDING — единственное не-терминальное состояние; ACCEPTED и REJECTED
// достигаются ровно один раз и больше не меняются (только удаление).
type SwapRequest struct {
	ID              int64             `json:"id"`
	RequesterSlotID int64             `json:"requesterSlotId"`
	ReceiverSlotID  int64             `json:"receiverSlotId"`
	Status          SwapRequestStatus `json:"status"`
	CreatedAt       time.Time         `json:"-"`
}

// Resolved проверяет что предложение уже обработано (принято или отклонено)
func (sr *SwapRequest) Resolved() bool {
	return sr.Status == SwapRequestStatusAccepted || sr.Status == SwapRequestStatusRejected
}
