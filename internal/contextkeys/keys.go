package contextkeys

import "context"

type messageTypeKey struct{}
type callbackDataKey struct{}

type MessageType string

const (
	MessageTypeCommand     MessageType = "command"
	MessageTypeText        MessageType = "text"
	MessageTypeClickButton MessageType = "clickButton"
	MessageTypeUnknown     MessageType = "unknown"
)

func WithMessageType(ctx context.Context, msgType MessageType) context.Context {
	return context.WithValue(ctx, messageTypeKey{}, msgType)
}

func GetMessageType(ctx context.Context) (MessageType, bool) {
	v := ctx.Value(messageTypeKey{})
	if v == nil {
		return MessageTypeUnknown, false
	}
	t, ok := v.(MessageType)
	return t, ok
}

func WithCallbackData(ctx context.Context, data string) context.Context {
	return context.WithValue(ctx, callbackDataKey{}, data)
}

func GetCallbackData(ctx context.Context) (string, bool) {
	v := ctx.Value(callbackDataKey{})
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
