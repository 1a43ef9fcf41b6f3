package chat

// BroadcastGlobal delivers text to every registered nickname. It returns the
// number of sinks that accepted the line.
func (r *Registry) BroadcastGlobal(text string) (int, error) {
	rep, err := r.call(Event{Type: EventBroadcastGlobal, Text: text})
	return rep.Delivered, err
}

// BroadcastRoom delivers text to every registered member of room id.
func (r *Registry) BroadcastRoom(id, text string) (int, error) {
	rep, err := r.call(Event{Type: EventBroadcastRoom, Room: id, Text: text})
	return rep.Delivered, err
}

func (r *Registry) handleBroadcastGlobal(st *state, ev Event) Reply {
	delivered := 0
	for name, sink := range st.sinks {
		if r.deliver(name, sink, ev.Text) {
			delivered++
		}
	}
	return Reply{OK: true, Delivered: delivered}
}

func (r *Registry) handleBroadcastRoom(st *state, ev Event) Reply {
	members, ok := st.rooms[ev.Room]
	if !ok {
		return Reply{}
	}
	delivered := 0
	for name := range members {
		sink, ok := st.sinks[name]
		if !ok {
			continue
		}
		if r.deliver(name, sink, ev.Text) {
			delivered++
		}
	}
	return Reply{OK: true, Delivered: delivered}
}

// deliver hands one line to sink. A failing sink is skipped; removing it is
// left to the owning session's cleanup.
func (r *Registry) deliver(name string, sink Sink, text string) bool {
	if err := sink.Send(text); err != nil {
		DeliveryFailures.Inc()
		r.logger.Debug("delivery skipped", "nickname", name, "error", err)
		return false
	}
	return true
}
