package mail

import "time"

type AlertEmailData struct {
	Severity string
	Type     string
	Message  string
	Overall  string
	RaisedAt time.Time
	ErrorID  string
	Context  map[string]string
}

type EmailSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string

	dialer Dialer
}
