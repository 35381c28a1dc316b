package twilio

type SendMessageInput struct {
	To   string // E.164, e.g. "+447700900123"
	Body string
}

type SendResult struct {
	MessageID string `json:"sid"`
	Status    string `json:"status"`
}

type ErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}
