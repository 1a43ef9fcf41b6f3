package chat

import "strings"

const helpText = "Available commands: /list, /create, /join [room number], /exit, /bye"

type command struct {
	prefix string
	name   string
	run    func(s *Session, line string) (quit bool)
}

// commands are matched by prefix and are not exclusive: every line starting
// with "/" gets the help text, followed by the effect of each specific
// command whose prefix it also carries.
var commands = []command{
	{prefix: "/", name: "help", run: (*Session).cmdHelp},
	{prefix: "/create", name: "create", run: (*Session).cmdCreate},
	{prefix: "/list", name: "list", run: (*Session).cmdList},
	{prefix: "/join", name: "join", run: (*Session).cmdJoin},
	{prefix: "/exit", name: "exit", run: (*Session).cmdExit},
	{prefix: "/bye", name: "bye", run: (*Session).cmdBye},
}

// dispatch runs every command matching line and reports whether the session
// should end.
func (s *Session) dispatch(line string) bool {
	quit := false
	for _, c := range commands {
		if !strings.HasPrefix(line, c.prefix) {
			continue
		}
		MessagesTotal.WithLabelValues(c.name).Inc()
		if c.run(s, line) {
			quit = true
		}
	}
	return quit
}

func (s *Session) cmdHelp(string) bool {
	s.send(helpText)
	return false
}

func (s *Session) cmdCreate(string) bool {
	id, err := s.reg.CreateRoom()
	if err != nil {
		s.logger.Warn("create room failed", "error", err)
		return false
	}
	s.send("Room number " + id + " has been created.")
	return false
}

func (s *Session) cmdList(string) bool {
	ids, err := s.reg.ListRoomIDs()
	if err != nil {
		s.logger.Warn("list rooms failed", "error", err)
		return false
	}
	s.send("Available rooms:")
	for _, id := range ids {
		s.send(id)
	}
	return false
}

func (s *Session) cmdJoin(line string) bool {
	parts := strings.Split(line, " ")
	if len(parts) != 2 {
		s.send("Invalid command. Usage: /join [room number]")
		return false
	}
	id := parts[1]

	res, err := s.reg.JoinRoom(id, s.nickname, s.currentRoom)
	if err != nil {
		s.logger.Warn("join room failed", "room", id, "error", err)
		return false
	}
	if !res.Joined {
		s.send("Room " + id + " does not exist.")
		return false
	}
	if res.Already {
		s.currentRoom = id
		s.send("You have joined room " + id)
		return false
	}

	if res.Previous != "" {
		s.announceDeparture(res.Previous, res.PreviousRemoved)
	}
	s.currentRoom = id
	s.send("You have joined room " + id)
	s.broadcastRoom(id, s.nickname+" has joined the room.")
	return false
}

func (s *Session) cmdExit(string) bool {
	if s.currentRoom != "" {
		s.leaveRoom(s.currentRoom)
		s.currentRoom = ""
	}
	s.send("You have exited the room and returned to lobby.")
	return false
}

func (s *Session) cmdBye(string) bool {
	s.send("Goodbye!")
	return true
}
