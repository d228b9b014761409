package contracts

// Severity grades a feedback message.
type Severity string

const (
	SeverityDebug   Severity = "DEBUG"
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// FeedbackMessage carries diagnostic feedback about processed input,
// optionally tied to a specific object within it. An empty ObjectID means
// the message concerns the input as a whole.
type FeedbackMessage struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	ObjectID string   `json:"objectId,omitempty"`
}
