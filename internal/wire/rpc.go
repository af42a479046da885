package wire

import "fmt"

// Kind discriminates the three RPC frame shapes. It is always the first
// element of the encoded array.
type Kind int

const (
	KindRequest      Kind = 0
	KindResponse     Kind = 1
	KindNotification Kind = 2
)

// Request is `[0, msgid, method, params]`.
type Request struct {
	MsgID  uint64
	Method string
	Params any
}

// Response is `[1, msgid, err, result]`. Err is nil on success, or a
// string describing the failure — the protocol never carries structured
// error objects, only human-readable strings (§7).
type Response struct {
	MsgID  uint64
	Err    any
	Result any
}

// Notification is `[2, method, params]`.
type Notification struct {
	Method string
	Params any
}

// EncodeRequest, EncodeResponse and EncodeNotification build the tuple
// shapes from §4.1 and hand them to Encode.
func EncodeRequest(msgID uint64, method string, params any) ([]byte, error) {
	return Encode([]any{int(KindRequest), msgID, method, params})
}

func EncodeResponse(msgID uint64, errVal, result any) ([]byte, error) {
	return Encode([]any{int(KindResponse), msgID, errVal, result})
}

func EncodeNotification(method string, params any) ([]byte, error) {
	return Encode([]any{int(KindNotification), method, params})
}

// Message is the decoded, typed form of one frame: exactly one of Request,
// Response or Notification is non-nil.
type Message struct {
	Request      *Request
	Response     *Response
	Notification *Notification
}

// DecodeMessage decodes one frame from the front of data and classifies it
// by its leading discriminator. It has the same NeedMoreInput/InvalidFormat
// contract as Decode.
func DecodeMessage(data []byte) (*Message, int, error) {
	v, n, err := Decode(data)
	if err != nil {
		return nil, 0, err
	}
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, 0, fmt.Errorf("%w: frame is not a non-empty array", ErrInvalidFormat)
	}
	kind, ok := asInt(arr[0])
	if !ok {
		return nil, 0, fmt.Errorf("%w: frame discriminator is not an integer", ErrInvalidFormat)
	}
	switch Kind(kind) {
	case KindRequest:
		if len(arr) != 4 {
			return nil, 0, fmt.Errorf("%w: request frame has %d elements, want 4", ErrInvalidFormat, len(arr))
		}
		msgID, ok := asUint(arr[1])
		if !ok {
			return nil, 0, fmt.Errorf("%w: request msgid is not an integer", ErrInvalidFormat)
		}
		method, ok := arr[2].(string)
		if !ok {
			return nil, 0, fmt.Errorf("%w: request method is not a string", ErrInvalidFormat)
		}
		return &Message{Request: &Request{MsgID: msgID, Method: method, Params: arr[3]}}, n, nil
	case KindResponse:
		if len(arr) != 4 {
			return nil, 0, fmt.Errorf("%w: response frame has %d elements, want 4", ErrInvalidFormat, len(arr))
		}
		msgID, ok := asUint(arr[1])
		if !ok {
			return nil, 0, fmt.Errorf("%w: response msgid is not an integer", ErrInvalidFormat)
		}
		return &Message{Response: &Response{MsgID: msgID, Err: arr[2], Result: arr[3]}}, n, nil
	case KindNotification:
		if len(arr) != 3 {
			return nil, 0, fmt.Errorf("%w: notification frame has %d elements, want 3", ErrInvalidFormat, len(arr))
		}
		method, ok := arr[1].(string)
		if !ok {
			return nil, 0, fmt.Errorf("%w: notification method is not a string", ErrInvalidFormat)
		}
		return &Message{Notification: &Notification{Method: method, Params: arr[2]}}, n, nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown frame discriminator %d", ErrInvalidFormat, kind)
	}
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case int:
		return int64(x), true
	}
	return 0, false
}

func asUint(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case int64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case int:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	}
	return 0, false
}
