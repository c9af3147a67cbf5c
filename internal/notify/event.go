package notify

// Типы событий, отправляемых подключённым клиентам
const (
	// TypeNewRequest новое входящее предложение обмена (получателю)
	TypeNewRequest = "NEW_REQUEST"
	// TypeRequestResponse ответ на предложение, поле status содержит исход (инициатору)
	TypeRequestResponse = "REQUEST_RESPONSE"
	// TypeMarketplaceUpdate биржа изменилась, список слотов нужно перечитать (всем остальным)
	TypeMarketplaceUpdate = "MARKETPLACE_UPDATE"
)

// Event push-событие для клиента
type Event struct {
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
}

// NewRequest событие о новом входящем предложении
func NewRequest() Event {
	return Event{Type: TypeNewRequest}
}

// RequestResponse событие об исходе предложения
func RequestResponse(status string) Event {
	return Event{Type: TypeRequestResponse, Status: status}
}

// MarketplaceUpdate событие об изменении биржи
func MarketplaceUpdate() Event {
	return Event{Type: TypeMarketplaceUpdate}
}
