package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// The room list travels as a line-oriented text serialization inside
// the binary envelope:
//
//	roomId|roomName|currentPlayers|maxPlayers|hasPassword|hostName
//
// one room per line, newline-separated. The format is deliberately
// simple so operators can read it off the wire. Field values are
// sanitized against the two delimiter characters when formatted.

var roomFieldSanitizer = strings.NewReplacer("|", " ", "\n", " ", "\r", " ")

// FormatRoomList renders rooms in the text sub-format.
//
// Postcondition: Returns "" for an empty list; otherwise one line per
// room with no trailing newline.
func FormatRoomList(rooms []RoomSummary) string {
	if len(rooms) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, room := range rooms {
		if i > 0 {
			sb.WriteByte('\n')
		}
		pw := "0"
		if room.HasPassword {
			pw = "1"
		}
		sb.WriteString(roomFieldSanitizer.Replace(room.ID))
		sb.WriteByte('|')
		sb.WriteString(roomFieldSanitizer.Replace(room.Name))
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(room.Players))
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(room.MaxPlayers))
		sb.WriteByte('|')
		sb.WriteString(pw)
		sb.WriteByte('|')
		sb.WriteString(roomFieldSanitizer.Replace(room.HostName))
	}
	return sb.String()
}

// ParseRoomList parses the text sub-format back into summaries.
//
// Postcondition: Returns nil for empty input; an error if any line
// does not have exactly six fields or a numeric field is malformed.
func ParseRoomList(s string) ([]RoomSummary, error) {
	if s == "" {
		return nil, nil
	}
	lines := strings.Split(s, "\n")
	rooms := make([]RoomSummary, 0, len(lines))
	for i, line := range lines {
		parts := strings.Split(line, "|")
		if len(parts) != 6 {
			return nil, fmt.Errorf("room list line %d: %d fields, want 6", i+1, len(parts))
		}
		players, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("room list line %d: players: %w", i+1, err)
		}
		maxPlayers, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, fmt.Errorf("room list line %d: max players: %w", i+1, err)
		}
		if parts[4] != "0" && parts[4] != "1" {
			return nil, fmt.Errorf("room list line %d: password flag %q", i+1, parts[4])
		}
		rooms = append(rooms, RoomSummary{
			ID:          parts[0],
			Name:        parts[1],
			Players:     players,
			MaxPlayers:  maxPlayers,
			HasPassword: parts[4] == "1",
			HostName:    parts[5],
		})
	}
	return rooms, nil
}
