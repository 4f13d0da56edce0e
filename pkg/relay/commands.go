package relay

import (
	"strconv"
	"strings"
)

// ResponseType classifies the outcome of a relayed chat command.
type ResponseType int

const (
	ResponseValid ResponseType = iota
	ResponseNoCommand
	ResponseFewArguments
	ResponseManyArguments
	ResponseUnrecognized
)

// Response is what a command dispatcher hands back for relaying to the
// player as a chat message.
type Response struct {
	Type      ResponseType
	Command   string
	ParamText string
}

// Dispatcher receives raw command strings (chat prefixed with "." or "/")
// from the state machine. Implementations outside this package can replace
// the built-in command set.
type Dispatcher interface {
	Handle(message string, c *Conn) Response
}

type command struct {
	name        string
	paramText   string
	description string
	argCount    int
	run         func(args []string, c *Conn)
}

// CommandHandler is the built-in relay command set: admin room controls plus
// a couple of player utilities.
type CommandHandler struct {
	commands map[string]*command
	order    []string
}

func NewCommandHandler() *CommandHandler {
	h := &CommandHandler{commands: make(map[string]*command)}
	h.registerBuiltins()
	return h
}

func (h *CommandHandler) Register(name, paramText, description string, run func([]string, *Conn)) {
	h.commands[name] = &command{
		name:        name,
		paramText:   paramText,
		description: description,
		argCount:    strings.Count(paramText, "<"),
		run:         run,
	}
	h.order = append(h.order, name)
}

// Handle parses and runs one command line. Arity mismatches come back as
// structured responses so the caller can relay usage text.
func (h *CommandHandler) Handle(message string, c *Conn) Response {
	trimmed := strings.TrimSpace(message)
	if !strings.HasPrefix(trimmed, ".") && !strings.HasPrefix(trimmed, "/") {
		return Response{Type: ResponseNoCommand}
	}
	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return Response{Type: ResponseNoCommand}
	}

	cmd, has := h.commands[strings.ToLower(fields[0])]
	if !has {
		return Response{Type: ResponseUnrecognized, Command: fields[0]}
	}

	args := fields[1:]
	if len(args) < cmd.argCount {
		return Response{Type: ResponseFewArguments, Command: "." + cmd.name, ParamText: cmd.paramText}
	}
	if len(args) > cmd.argCount {
		return Response{Type: ResponseManyArguments, Command: "." + cmd.name, ParamText: cmd.paramText}
	}

	cmd.run(args, c)
	return Response{Type: ResponseValid, Command: "." + cmd.name}
}

// isAdmin matches by registered identity, not by pointer: a reconnected
// admin keeps its powers.
func isAdmin(c *Conn) bool {
	room := c.Room()
	if room == nil {
		return false
	}
	admin := room.Admin()
	if admin == nil {
		return false
	}
	return admin.name == c.name && admin.registerPlayerID == c.registerPlayerID
}

func requireAdmin(c *Conn) bool {
	if isAdmin(c) {
		return true
	}
	c.SendSystemMessage("You are not the room admin")
	return false
}

func (h *CommandHandler) registerBuiltins() {
	h.Register("help", "", "List commands", func(_ []string, c *Conn) {
		var b strings.Builder
		for _, name := range h.order {
			cmd := h.commands[name]
			b.WriteString("   .")
			b.WriteString(cmd.name)
			if cmd.paramText != "" {
				b.WriteString(" ")
				b.WriteString(cmd.paramText)
			}
			b.WriteString(" - ")
			b.WriteString(cmd.description)
			b.WriteString("\n")
		}
		c.SendSystemMessage(b.String())
	})

	h.Register("myid", "", "Show your numeric player id", func(_ []string, c *Conn) {
		c.SendSystemMessage(strconv.FormatInt(numericID(c.registerPlayerID), 10))
	})

	h.Register("sync", "<on/off>", "Allow reconnecting after the game starts", func(args []string, c *Conn) {
		if !isAdmin(c) {
			return
		}
		room := c.Room()
		room.SetSyncFlag(args[0] == "on")
		if room.SyncFlag() {
			c.SendSystemMessage("Reconnect sync enabled")
		} else {
			c.SendSystemMessage("Reconnect sync disabled")
		}
	})

	h.Register("rp", "<Name/Position>", "Let the next joiner take over a dropped slot", func(args []string, c *Conn) {
		if !requireAdmin(c) {
			return
		}
		room := c.Room()
		if !room.IsStarted() {
			c.SendSystemMessage("The room has not started a game")
			return
		}
		player := findRosterPlayer(c, args[0])
		if player == nil {
			return
		}
		if err := room.ReplacePlayer(player.UUID); err != nil {
			c.SendSystemMessage("Player " + player.Name + " is still online and cannot be replaced")
			return
		}
		c.SendSystemMessage("Ready to replace player " + player.Name)
	})

	h.Register("kickx", "<Name/Position>", "Kick a player for 60 seconds", func(args []string, c *Conn) {
		if !requireAdmin(c) {
			return
		}
		target := findPlayerConn(c, args[0])
		if target == nil {
			return
		}
		if err := c.Room().Kick(target, "你被踢出服务器", 60); err != nil {
			c.SendSystemMessage("已经开局十分钟了 不能再BAN")
			return
		}
		c.SendSystemMessage("Kick : " + args[0] + " OK")
	})

	h.Register("ban", "<Name/Position>", "Ban a player permanently", func(args []string, c *Conn) {
		if !requireAdmin(c) {
			return
		}
		target := findPlayerConn(c, args[0])
		if target == nil {
			return
		}
		if err := c.Room().Ban(target, "你被服务器 BAN"); err != nil {
			c.SendSystemMessage("已经开局十分钟了 不能再BAN")
			return
		}
		c.SendSystemMessage("BAN : " + args[0] + " OK")
	})

	h.Register("allmute", "", "Toggle room-wide mute", func(_ []string, c *Conn) {
		if !requireAdmin(c) {
			return
		}
		if c.Room().ToggleAllMute() {
			c.SendSystemMessage("Room-wide mute is on")
		} else {
			c.SendSystemMessage("Room-wide mute is off")
		}
	})
}

// numericID renders the leading bytes of the uuid hex as a positive number,
// the short id players quote in commands.
func numericID(hexID string) int64 {
	digits := hexID
	if len(digits) > 8 {
		digits = digits[:8]
	}
	v, err := strconv.ParseInt(digits, 16, 64)
	if err != nil {
		return 0
	}
	if v < 0 {
		return -v
	}
	return v
}

// findPlayerConn resolves a live connection by 1-based roster position or by
// case-insensitive name fragment. Ambiguous fragments and misses are
// reported to the caller as chat.
func findPlayerConn(c *Conn, query string) *Conn {
	room := c.Room()
	if room == nil {
		return nil
	}

	if pos, err := strconv.Atoi(query); err == nil {
		target := room.playerAt(pos - 1)
		if target == nil {
			c.SendSystemMessage("Player not found")
		}
		return target
	}

	var found *Conn
	count := 0
	for _, item := range room.connections.Items() {
		if item.player == nil {
			continue
		}
		if strings.Contains(strings.ToLower(item.player.Name), strings.ToLower(query)) {
			found = item
			count++
		}
	}
	if count > 1 {
		c.SendSystemMessage("More than one match, use a longer name")
		return nil
	}
	if found == nil {
		c.SendSystemMessage("Player not found")
	}
	return found
}

// findRosterPlayer resolves a roster slot (connected or not) by position or
// name fragment.
func findRosterPlayer(c *Conn, query string) *Player {
	room := c.Room()
	if room == nil {
		return nil
	}

	var found *Player
	count := 0

	room.mu.Lock()
	if pos, err := strconv.Atoi(query); err == nil {
		if p, has := room.roster[pos-1]; has {
			found = p
			count = 1
		}
	} else {
		for _, p := range room.roster {
			if strings.Contains(strings.ToLower(p.Name), strings.ToLower(query)) {
				found = p
				count++
			}
		}
	}
	room.mu.Unlock()

	if count > 1 {
		c.SendSystemMessage("More than one match, use a longer name")
		return nil
	}
	if found == nil {
		c.SendSystemMessage("Player not found")
	}
	return found
}
