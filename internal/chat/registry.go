package chat

import (
	"log/slog"
	"sort"
	"strconv"
	"time"
)

// Registry owns every piece of state shared between sessions: live nicknames,
// rooms and memberships. All access goes through the Run goroutine, so
// concurrent callers observe the operations one at a time.
type Registry struct {
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *slog.Logger
}

// state is only touched by the Run goroutine.
type state struct {
	sinks      map[string]Sink
	// rooms counts, per room, how many live sessions sit there under each
	// nickname. Sessions sharing a nickname each hold one count.
	rooms      map[string]map[string]int
	nextRoomID int
}

func NewRegistry(buffer int, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		events: make(chan Event, buffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
}

// Stop signals the Run loop to exit.
func (r *Registry) Stop() {
	close(r.stopCh)
}

// Wait blocks until the Run loop has completely finished.
func (r *Registry) Wait() {
	<-r.doneCh
}

func (r *Registry) Run() {
	defer close(r.doneCh)
	st := &state{
		sinks: make(map[string]Sink),
		rooms: make(map[string]map[string]int),
	}

	for {
		select {
		case ev := <-r.events:
			start := time.Now()
			rep := r.handle(st, ev)
			if ev.Reply != nil {
				ev.Reply <- rep
			}
			EventProcessingDuration.WithLabelValues(ev.Type.String()).Observe(time.Since(start).Seconds())
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) handle(st *state, ev Event) Reply {
	switch ev.Type {
	case EventRegister:
		return r.handleRegister(st, ev)
	case EventUnregister:
		return r.handleUnregister(st, ev)
	case EventCreateRoom:
		return r.handleCreateRoom(st)
	case EventJoinRoom:
		return r.handleJoinRoom(st, ev)
	case EventLeaveRoom:
		return r.handleLeaveRoom(st, ev)
	case EventListRooms:
		return Reply{OK: true, Rooms: st.roomIDs()}
	case EventMembers:
		return Reply{OK: true, Members: st.members(ev.Room)}
	case EventBroadcastGlobal:
		return r.handleBroadcastGlobal(st, ev)
	case EventBroadcastRoom:
		return r.handleBroadcastRoom(st, ev)
	case EventStats:
		return Reply{OK: true, Stats: Stats{Clients: len(st.sinks), Rooms: len(st.rooms)}}
	}
	return Reply{}
}

// call submits ev and waits for its reply.
func (r *Registry) call(ev Event) (Reply, error) {
	ev.Reply = make(chan Reply, 1)
	select {
	case r.events <- ev:
	case <-r.stopCh:
		return Reply{}, ErrRegistryStopped
	}
	select {
	case rep := <-ev.Reply:
		return rep, nil
	case <-r.doneCh:
		return Reply{}, ErrRegistryStopped
	}
}

// RegisterSession binds nickname to sink. An existing entry for the same
// nickname is overwritten.
func (r *Registry) RegisterSession(nickname string, sink Sink) error {
	_, err := r.call(Event{Type: EventRegister, Nickname: nickname, Sink: sink})
	return err
}

// UnregisterSession removes nickname if it is still bound to sink. A session
// whose nickname was taken over by a later registration leaves the newer
// entry in place.
func (r *Registry) UnregisterSession(nickname string, sink Sink) error {
	_, err := r.call(Event{Type: EventUnregister, Nickname: nickname, Sink: sink})
	return err
}

// CreateRoom allocates the next room id. Ids start at 1 and are never reused.
func (r *Registry) CreateRoom() (string, error) {
	rep, err := r.call(Event{Type: EventCreateRoom})
	return rep.Room, err
}

// JoinRoom moves nickname from room from (empty for the lobby) into room id
// in one step. Joined is false, and nothing changes, when id does not exist.
func (r *Registry) JoinRoom(id, nickname, from string) (JoinResult, error) {
	rep, err := r.call(Event{Type: EventJoinRoom, Room: id, Nickname: nickname, From: from})
	return rep.Join, err
}

// LeaveRoom removes one membership of nickname from room id. When the room is left empty it is
// deleted in the same step and emptied is true.
func (r *Registry) LeaveRoom(id, nickname string) (emptied bool, err error) {
	rep, err := r.call(Event{Type: EventLeaveRoom, Room: id, Nickname: nickname})
	return rep.OK, err
}

// ListRoomIDs returns the existing room ids in ascending numeric order.
func (r *Registry) ListRoomIDs() ([]string, error) {
	rep, err := r.call(Event{Type: EventListRooms})
	return rep.Rooms, err
}

// MembersOf returns the sorted distinct member nicknames of room id, or
// nothing when it does not exist.
func (r *Registry) MembersOf(id string) ([]string, error) {
	rep, err := r.call(Event{Type: EventMembers, Room: id})
	return rep.Members, err
}

func (r *Registry) Stats() (Stats, error) {
	rep, err := r.call(Event{Type: EventStats})
	return rep.Stats, err
}

func (r *Registry) handleRegister(st *state, ev Event) Reply {
	if _, exists := st.sinks[ev.Nickname]; exists {
		r.logger.Warn("nickname rebound to a new session", "nickname", ev.Nickname)
	}
	st.sinks[ev.Nickname] = ev.Sink
	ConnectedClients.Set(float64(len(st.sinks)))

	r.logger.Info("user registered", "nickname", ev.Nickname)
	return Reply{OK: true}
}

func (r *Registry) handleUnregister(st *state, ev Event) Reply {
	cur, ok := st.sinks[ev.Nickname]
	if !ok || (ev.Sink != nil && cur != ev.Sink) {
		return Reply{}
	}
	delete(st.sinks, ev.Nickname)
	ConnectedClients.Set(float64(len(st.sinks)))

	r.logger.Info("user left", "nickname", ev.Nickname)
	return Reply{OK: true}
}

func (r *Registry) handleCreateRoom(st *state) Reply {
	st.nextRoomID++
	id := strconv.Itoa(st.nextRoomID)
	st.rooms[id] = make(map[string]int)
	OpenRooms.Set(float64(len(st.rooms)))

	r.logger.Info("room created", "room", id)
	return Reply{OK: true, Room: id}
}

func (r *Registry) handleJoinRoom(st *state, ev Event) Reply {
	members, ok := st.rooms[ev.Room]
	if !ok {
		return Reply{}
	}
	if ev.From == ev.Room {
		return Reply{OK: true, Join: JoinResult{Joined: true, Already: true}}
	}

	res := JoinResult{Joined: true}
	if ev.From != "" {
		res.Previous = ev.From
		res.PreviousRemoved = st.removeMember(ev.From, ev.Nickname)
		if res.PreviousRemoved {
			r.logger.Info("room removed", "room", ev.From)
		}
	}
	members[ev.Nickname]++
	OpenRooms.Set(float64(len(st.rooms)))

	r.logger.Debug("room joined", "room", ev.Room, "nickname", ev.Nickname)
	return Reply{OK: true, Join: res}
}

func (r *Registry) handleLeaveRoom(st *state, ev Event) Reply {
	if st.rooms[ev.Room][ev.Nickname] == 0 {
		return Reply{}
	}
	emptied := st.removeMember(ev.Room, ev.Nickname)
	if emptied {
		OpenRooms.Set(float64(len(st.rooms)))
		r.logger.Info("room removed", "room", ev.Room)
	}
	return Reply{OK: emptied}
}

// removeMember drops one membership of nickname from room and deletes the
// room once it has no members left. It reports whether the room was deleted.
func (st *state) removeMember(room, nickname string) bool {
	members, ok := st.rooms[room]
	if !ok || members[nickname] == 0 {
		return false
	}
	if members[nickname]--; members[nickname] == 0 {
		delete(members, nickname)
	}
	if len(members) > 0 {
		return false
	}
	delete(st.rooms, room)
	return true
}

func (st *state) roomIDs() []string {
	ids := make([]string, 0, len(st.rooms))
	for id := range st.rooms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	return ids
}

func (st *state) members(room string) []string {
	set := st.rooms[room]
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
