// Package signaling adapts the duplex signaling channel: event names and
// payloads, an event router, and a WebSocket client.
package signaling

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// 1:1 random-match events.
const (
	EventJoinQueue        = "join-queue"
	EventLeaveQueue       = "leave-queue"
	EventNext             = "next"
	EventMatched          = "matched"
	EventWaiting          = "waiting"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventICECandidate     = "ice-candidate"
	EventPeerDisconnected = "peer-disconnected"
)

// Group-room events.
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventRoomUsers        = "room-users"
	EventUserJoinedRoom   = "user-joined-room"
	EventUserLeftRoom     = "user-left-room"
	EventRoomOffer        = "room-offer"
	EventRoomAnswer       = "room-answer"
	EventRoomICECandidate = "room-ice-candidate"
	EventRoomError        = "room-error"
)

// Matched announces a 1:1 pairing. Initiator is assigned by the server and
// decides which side sends the offer.
type Matched struct {
	PeerID    string `json:"peerId"`
	Initiator bool   `json:"initiator"`
}

// UnmarshalJSON accepts both "initiator" and "isInitiator".
func (m *Matched) UnmarshalJSON(data []byte) error {
	var raw struct {
		PeerID      string `json:"peerId"`
		Initiator   *bool  `json:"initiator"`
		IsInitiator *bool  `json:"isInitiator"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.PeerID = raw.PeerID
	switch {
	case raw.Initiator != nil:
		m.Initiator = *raw.Initiator
	case raw.IsInitiator != nil:
		m.Initiator = *raw.IsInitiator
	default:
		m.Initiator = false
	}
	return nil
}

// Description carries an offer or answer. SenderID is set on inbound
// messages by the server, TargetID on outbound ones, RoomID only in group mode.
type Description struct {
	SDP      webrtc.SessionDescription `json:"sdp"`
	SenderID string                    `json:"senderId,omitempty"`
	TargetID string                    `json:"targetId,omitempty"`
	RoomID   string                    `json:"roomId,omitempty"`
}

// Candidate carries one trickled ICE candidate.
type Candidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	SenderID  string                  `json:"senderId,omitempty"`
	TargetID  string                  `json:"targetId,omitempty"`
	RoomID    string                  `json:"roomId,omitempty"`
}

// RoomUsers is the roster delivered after joining a room. It lists every
// participant already present, excluding the receiver.
type RoomUsers struct {
	Users    []string `json:"users"`
	RoomName string   `json:"roomName"`
}

// RoomMember identifies a participant in join/leave notifications.
type RoomMember struct {
	SocketID string `json:"socketId"`
}

// RoomRequest is sent to join or leave a room.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// RoomError is an unrecoverable room-level error from the server.
type RoomError struct {
	Message string `json:"message"`
}
