package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/palemoky/battle-tanks/internal/protocol"
)

// Format 线路编码格式
type Format string

const (
	FormatJSON     Format = "json"     // 文本帧
	FormatProtobuf Format = "protobuf" // 二进制帧，structpb 信封
)

// ParseFormat 解析配置中的编码格式，未知值回退到 JSON
func ParseFormat(s string) Format {
	if Format(s) == FormatProtobuf {
		return FormatProtobuf
	}
	return FormatJSON
}

// Binary 是否使用 websocket 二进制帧
func (f Format) Binary() bool {
	return f == FormatProtobuf
}

// NewMessage 创建一个新消息，payload 使用 JSON 编码
func NewMessage(msgType protocol.MessageType, payload any) (*protocol.Message, error) {
	msg := &protocol.Message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = data
	}
	return msg, nil
}

// MustNewMessage 创建消息，失败时 panic
func MustNewMessage(msgType protocol.MessageType, payload any) *protocol.Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// ParsePayload 解析消息的 Payload 到指定类型
func ParsePayload[T any](msg *protocol.Message) (*T, error) {
	var payload T
	if len(msg.Payload) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// NewErrorMessage 创建错误消息
func NewErrorMessage(code int) *protocol.Message {
	return NewErrorMessageWithText(code, protocol.ErrorMessages[code])
}

// NewErrorMessageWithText 创建带自定义文本的错误消息
func NewErrorMessageWithText(code int, text string) *protocol.Message {
	msg, _ := NewMessage(protocol.MsgError, protocol.ErrorPayload{
		Code:    code,
		Message: text,
	})
	return msg
}

// Encode 按格式编码消息
func Encode(format Format, m *protocol.Message) ([]byte, error) {
	if format == FormatProtobuf {
		return encodeProto(m)
	}
	return encodeJSON(m)
}

// Decode 按格式解码消息
// 注意: 使用完毕后可调用 PutMessage 归还对象到池
func Decode(format Format, data []byte) (*protocol.Message, error) {
	if format == FormatProtobuf {
		return decodeProto(data)
	}
	return decodeJSON(data)
}

func encodeJSON(m *protocol.Message) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(m); err != nil {
		return nil, err
	}
	// 去掉 Encoder 追加的换行，并复制出池化缓冲区
	out := buf.Bytes()
	return append([]byte(nil), out[:len(out)-1]...), nil
}

func decodeJSON(data []byte) (*protocol.Message, error) {
	msg := GetMessage()
	if err := json.Unmarshal(data, msg); err != nil {
		PutMessage(msg)
		return nil, err
	}
	return msg, nil
}

func encodeProto(m *protocol.Message) ([]byte, error) {
	var payload any
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return nil, fmt.Errorf("payload 不是合法 JSON: %w", err)
		}
	}

	payloadValue, err := structpb.NewValue(payload)
	if err != nil {
		return nil, err
	}

	env := getEnvelope()
	defer putEnvelope(env)
	env.Fields = map[string]*structpb.Value{
		"type":    structpb.NewStringValue(string(m.Type)),
		"payload": payloadValue,
	}

	return proto.Marshal(env)
}

func decodeProto(data []byte) (*protocol.Message, error) {
	env := getEnvelope()
	defer putEnvelope(env)

	if err := proto.Unmarshal(data, env); err != nil {
		return nil, err
	}

	fields := env.GetFields()
	typeValue, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("缺少消息类型")
	}

	msg := GetMessage()
	msg.Type = protocol.MessageType(typeValue.GetStringValue())

	if p, ok := fields["payload"]; ok {
		if _, isNull := p.GetKind().(*structpb.Value_NullValue); !isNull {
			raw, err := json.Marshal(p.AsInterface())
			if err != nil {
				PutMessage(msg)
				return nil, err
			}
			msg.Payload = raw
		}
	}

	return msg, nil
}
