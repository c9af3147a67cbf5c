package model

import "time"

// MarketplaceSlot слот на "бирже" обмена вместе с отображаемым именем владельца
type MarketplaceSlot struct {
	Event
	OwnerName string `json:"ownerName"`
}

// IncomingSwapRequest входящее предложение: чужой слот, предложенный за слот пользователя.
// Собственный слот получателя не включается — он подразумевается.
type IncomingSwapRequest struct {
	SwapRequestID          int64     `json:"swapRequestId"`
	RequesterSlotID        int64     `json:"requesterSlotId"`
	RequesterSlotTitle     string    `json:"requesterSlotTitle"`
	RequesterSlotStartTime time.Time `json:"requesterSlotStartTime"`
	RequesterName          string    `json:"requesterName"`
}

// OutgoingSwapRequest исходящее предложение пользователя в любом статусе
type OutgoingSwapRequest struct {
	SwapRequestID         int64             `json:"swapRequestId"`
	Status                SwapRequestStatus `json:"status"`
	ReceiverSlotID        int64             `json:"receiverSlotId"`
	ReceiverSlotTitle     string            `json:"receiverSlotTitle"`
	ReceiverSlotStartTime time.Time         `json:"receiverSlotStartTime"`
	ReceiverName          string            `json:"receiverName"`
}
