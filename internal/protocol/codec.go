package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/sigrelay/sigrelay/internal/core"
)

// Codec decodes inbound frames into shape-checked envelopes and encodes
// server-sent messages. It holds no state besides the validator and is safe
// for concurrent use.
type Codec struct {
	validate *validator.Validate
}

func NewCodec() *Codec {
	return &Codec{validate: validator.New(validator.WithRequiredStructEnabled())}
}

const MaxFrameSize = 64 << 10

// Decode parses the discriminant, decodes the matching body and validates
// its shape. Everything it rejects carries a *Error, so callers can send the
// rejection straight back to the sender.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	if len(data) > MaxFrameSize {
		return nil, ErrValidation.WithMessage("frame too large")
	}
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, ErrValidation.WithMessage("malformed json")
	}

	var body any
	switch head.Type {
	case KindRegister:
		body = &RegisterRequest{}
	case KindList:
		body = &ListRequest{}
	case KindStartSession:
		body = &StartSessionRequest{}
	case KindEndSession:
		body = &EndSessionRequest{}
	case KindOffer:
		body = &OfferRequest{}
	case KindAnswer:
		body = &AnswerRequest{}
	case KindICE:
		body = &ICERequest{}
	case KindPing:
		body = &PingRequest{}
	default:
		return nil, ErrUnknownType.WithMessage(string(head.Type))
	}

	if err := json.Unmarshal(data, body); err != nil {
		return nil, ErrValidation.WithMessage(fmt.Sprintf("malformed %s body", head.Type))
	}
	if err := c.validate.Struct(body); err != nil {
		return nil, ErrValidation.WithMessage(err.Error())
	}
	return &Envelope{Kind: head.Type, Raw: json.RawMessage(data), Body: body}, nil
}

// Encode marshals a server-sent message into a frame.
func Encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		// all server-sent messages are plain structs; this cannot fail
		panic(fmt.Sprintf("protocol: encode %T: %v", v, err))
	}
	return core.Frame(b)
}
