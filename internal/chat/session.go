package chat

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const welcomePrompt = "Welcome to the chat server! Please enter your nickname:"

// Session drives one connection: nickname handshake, the read loop, and
// teardown.
type Session struct {
	id     string
	conn   io.ReadWriteCloser
	reg    *Registry
	out    *Outbox
	logger *slog.Logger

	nickname    string
	registered  bool
	currentRoom string // empty means the lobby

	cleanupOnce sync.Once
}

func NewSession(conn io.ReadWriteCloser, remote string, reg *Registry, sinkBuffer int, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   conn,
		reg:    reg,
		out:    NewOutbox(conn, sinkBuffer),
		logger: logger.With("session", id, "remote", remote),
	}
}

func (s *Session) ID() string { return s.id }

// Run blocks until the peer disconnects or sends /bye.
func (s *Session) Run() {
	defer s.cleanup()

	reader := bufio.NewReader(s.conn)

	s.send(welcomePrompt)
	nickname, err := readLine(reader)
	if err != nil {
		s.logger.Debug("disconnected before nickname", "error", err)
		return
	}
	s.nickname = nickname
	s.logger = s.logger.With("nickname", nickname)
	s.send("Hello, " + nickname + "!")

	if err := s.reg.RegisterSession(nickname, s.out); err != nil {
		s.logger.Error("register failed", "error", err)
		return
	}
	s.registered = true
	s.broadcastGlobal(nickname + " has joined the chat.")
	s.logger.Info("session started")

	for {
		line, err := readLine(reader)
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("read failed", "error", err)
			}
			return
		}

		if strings.HasPrefix(line, "/") {
			if quit := s.dispatch(line); quit {
				return
			}
			continue
		}

		if s.currentRoom == "" {
			// The lobby has no free-text channel.
			MessagesTotal.WithLabelValues("dropped").Inc()
			continue
		}
		MessagesTotal.WithLabelValues("chat").Inc()
		s.broadcastRoom(s.currentRoom, fmt.Sprintf("[%s] %s: %s", s.currentRoom, s.nickname, line))
	}
}

// cleanup runs once per session, whichever way the read loop ended.
func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		if s.registered {
			if err := s.reg.UnregisterSession(s.nickname, s.out); err != nil {
				s.logger.Warn("unregister failed", "error", err)
			}
			if s.currentRoom != "" {
				s.leaveRoom(s.currentRoom)
				s.currentRoom = ""
			}
			s.broadcastGlobal(s.nickname + " has left the chat.")
		}

		s.out.Close()
		_ = s.conn.Close()
		s.logger.Info("session closed")
	})
}

// leaveRoom takes the session out of room and tells whoever is affected:
// the remaining members, or everyone when the room was deleted.
func (s *Session) leaveRoom(room string) {
	emptied, err := s.reg.LeaveRoom(room, s.nickname)
	if err != nil {
		s.logger.Warn("leave room failed", "room", room, "error", err)
		return
	}
	s.announceDeparture(room, emptied)
}

func (s *Session) announceDeparture(room string, removed bool) {
	if removed {
		s.broadcastGlobal("Room " + room + " has been removed.")
		return
	}
	s.broadcastRoom(room, s.nickname+" has left the room.")
}

func (s *Session) send(line string) {
	if err := s.out.Send(line); err != nil {
		s.logger.Debug("reply dropped", "error", err)
	}
}

func (s *Session) broadcastGlobal(text string) {
	if _, err := s.reg.BroadcastGlobal(text); err != nil {
		s.logger.Warn("broadcast failed", "error", err)
	}
}

func (s *Session) broadcastRoom(room, text string) {
	if _, err := s.reg.BroadcastRoom(room, text); err != nil {
		s.logger.Warn("room broadcast failed", "room", room, "error", err)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		// last line without newline
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}
