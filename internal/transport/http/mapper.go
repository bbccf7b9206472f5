package http

import (
	"encoding/json"
	"strings"

	"github.com/collabroom/collabroom-server/internal/core"
	"github.com/collabroom/collabroom-server/internal/proto"
)

func decodeMsgData(data json.RawMessage) (*proto.MsgData, *proto.Error) {
	var msg proto.MsgData
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed message data"}
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "text is required"}
	}
	return &msg, nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessage,
			Data: proto.EventMessage{
				ID:     event.Message.ID,
				Text:   event.Message.Text,
				Sender: event.Message.From,
				TS:     event.Message.CreatedAt.Unix(),
			},
		}
	case core.EventAssistantMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameAssistant,
			Data: proto.EventAssistantMessage{
				Text:   event.Reply,
				Sender: event.From,
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
