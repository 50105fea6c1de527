package dispatch

import "encoding/json"

// Message is the uniform internal representation every transport
// converts its wire format into before calling the dispatcher: a
// JSON-RPC-2.0-shaped object classified into Request, Response, or
// Notification by strict, order-sensitive rules.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`

	// Routing metadata. Never serialised on the wire; transports
	// (notably AMQP) stash per-message routing data here so the
	// dispatcher can hand it back on Send without every transport
	// reimplementing correlation bookkeeping.
	Route interface{} `json:"-"`
}

// Kind is the classification of a Message; see Classify for the
// rules.
type Kind int

const (
	KindNotification Kind = iota
	KindRequest
	KindResponse
)

// Classify applies the three classification rules in order: a
// message with an id and either a result or an error
// is a Response; a message with an id and a method (and no
// result/error) is a Request; everything else is a Notification.
func Classify(m Message) Kind {
	hasID := len(m.ID) > 0
	switch {
	case hasID && (len(m.Result) > 0 || m.Error != nil):
		return KindResponse
	case hasID && m.Method != "":
		return KindRequest
	default:
		return KindNotification
	}
}

// Parse decodes raw bytes into a Message. Malformed JSON is reported
// to the caller so transports can log it and treat the message as a
// notification rather than blocking the pipeline.
func Parse(raw []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(raw, &m)
	return m, err
}

// NewRequest builds a request Message ready to marshal onto the wire,
// for transports constructing outbound calls. Nothing in this
// repository, tests included, calls it.
func NewRequest(id json.RawMessage, method string, params interface{}) (Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Message{}, err
	}
	return Message{JSONRPC: "2.0", ID: id, Method: method, Params: raw}, nil
}

// NewResult builds a successful response Message.
func NewResult(id json.RawMessage, result interface{}) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, err
	}
	return Message{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response Message.
func NewErrorResponse(id json.RawMessage, e *Error) Message {
	return Message{JSONRPC: "2.0", ID: id, Error: e}
}

// NewNotification builds a notification Message (no id).
func NewNotification(method string, params interface{}) (Message, error) {
	var raw json.RawMessage
	if params != nil {
		enc, err := json.Marshal(params)
		if err != nil {
			return Message{}, err
		}
		raw = enc
	}
	return Message{JSONRPC: "2.0", Method: method, Params: raw}, nil
}
