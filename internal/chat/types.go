package chat

import "errors"

// Sink delivers one line of text to a connected client.
type Sink interface {
	Send(line string) error
}

type EventType int

const (
	EventRegister EventType = iota
	EventUnregister
	EventCreateRoom
	EventJoinRoom
	EventLeaveRoom
	EventListRooms
	EventMembers
	EventBroadcastGlobal
	EventBroadcastRoom
	EventStats
)

func (t EventType) String() string {
	switch t {
	case EventRegister:
		return "register"
	case EventUnregister:
		return "unregister"
	case EventCreateRoom:
		return "create_room"
	case EventJoinRoom:
		return "join_room"
	case EventLeaveRoom:
		return "leave_room"
	case EventListRooms:
		return "list_rooms"
	case EventMembers:
		return "members"
	case EventBroadcastGlobal:
		return "broadcast_global"
	case EventBroadcastRoom:
		return "broadcast_room"
	case EventStats:
		return "stats"
	}
	return "unknown"
}

type Event struct {
	Type     EventType
	Nickname string
	Room     string
	From     string // room being left by a join
	Text     string
	Sink     Sink
	Reply    chan Reply // buffered(1); the registry answers every event exactly once
}

// Reply carries the result of a registry event. Only the fields relevant to
// the event type are set.
type Reply struct {
	OK        bool
	Room      string
	Rooms     []string
	Members   []string
	Join      JoinResult
	Delivered int
	Stats     Stats
}

// JoinResult describes a successful or failed room join.
type JoinResult struct {
	Joined bool
	// Already is set when the joining session was in the room before the call.
	Already bool
	// Previous is the room the nickname was moved out of, if any.
	Previous string
	// PreviousRemoved reports that Previous became empty and was deleted.
	PreviousRemoved bool
}

type Stats struct {
	Clients int `json:"clients"`
	Rooms   int `json:"rooms"`
}

var (
	ErrSinkClosed      = errors.New("sink closed")
	ErrSinkFull        = errors.New("sink full")
	ErrRegistryStopped = errors.New("registry stopped")
	ErrServerStopped   = errors.New("server stopped")
)
