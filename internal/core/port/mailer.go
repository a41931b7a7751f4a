package port

import "context"

// Message is an outbound email with plain and HTML bodies.
type Message struct {
	To        string
	ToName    string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Mailer delivers messages. It knows nothing of the business meaning of a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
