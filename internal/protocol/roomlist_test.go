package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFormatRoomListEmpty(t *testing.T) {
	assert.Equal(t, "", FormatRoomList(nil))
	assert.Equal(t, "", FormatRoomList([]RoomSummary{}))
}

func TestParseRoomListEmpty(t *testing.T) {
	rooms, err := ParseRoomList("")
	require.NoError(t, err)
	assert.Nil(t, rooms)
}

func TestFormatParseRoundTrip(t *testing.T) {
	rooms := []RoomSummary{
		{ID: "ab12cd34", Name: "arena", Players: 2, MaxPlayers: 4, HasPassword: true, HostName: "ada"},
		{ID: "ef56ab78", Name: "duel pit", Players: 1, MaxPlayers: 2, HostName: "bob"},
	}
	got, err := ParseRoomList(FormatRoomList(rooms))
	require.NoError(t, err)
	assert.Equal(t, rooms, got)
}

func TestFormatSanitizesDelimiters(t *testing.T) {
	rooms := []RoomSummary{
		{ID: "ab12cd34", Name: "pipes|and\nnewlines\r", Players: 1, MaxPlayers: 4, HostName: "a|b"},
	}
	got, err := ParseRoomList(FormatRoomList(rooms))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pipes and newlines ", got[0].Name)
	assert.Equal(t, "a b", got[0].HostName)
}

func TestParseRoomListMalformed(t *testing.T) {
	cases := map[string]string{
		"too few fields":    "id|name|1|4|0",
		"too many fields":   "id|name|1|4|0|host|extra",
		"bad player count":  "id|name|x|4|0|host",
		"bad max players":   "id|name|1|x|0|host",
		"bad password flag": "id|name|1|4|2|host",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRoomList(input)
			assert.Error(t, err)
		})
	}
}

func TestFormatParseRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "rooms")
		rooms := make([]RoomSummary, n)
		for i := range rooms {
			rooms[i] = RoomSummary{
				ID:          rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "id"),
				Name:        rapid.StringMatching(`[a-zA-Z0-9 ]{1,16}`).Draw(t, "name"),
				Players:     rapid.IntRange(1, 255).Draw(t, "players"),
				MaxPlayers:  rapid.IntRange(1, 255).Draw(t, "max_players"),
				HasPassword: rapid.Bool().Draw(t, "has_password"),
				HostName:    rapid.StringMatching(`[a-zA-Z0-9]{1,12}`).Draw(t, "host_name"),
			}
		}
		got, err := ParseRoomList(FormatRoomList(rooms))
		if err != nil {
			t.Fatalf("parsing: %v", err)
		}
		if len(got) != len(rooms) {
			t.Fatalf("room count: got %d want %d", len(got), len(rooms))
		}
		for i := range rooms {
			if got[i] != rooms[i] {
				t.Fatalf("room %d mismatch: got %+v want %+v", i, got[i], rooms[i])
			}
		}
	})
}
