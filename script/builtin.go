package script

import (
	"time"

	"github.com/onnwee/ooye-live/chat"
)

func say(username, first, last, text string, delay time.Duration) chat.Record {
	return chat.Record{
		MessageType: chat.MessageTypeMessage,
		Message:     text,
		Sender:      chat.Sender{Username: username, FirstName: first, LastName: last},
		Delay:       delay,
	}
}

func joined(username, first, last string, delay time.Duration) chat.Record {
	return chat.Record{
		MessageType: chat.MessageTypeNewMember,
		Message:     "just joined the stream",
		Sender:      chat.Sender{Username: username, FirstName: first, LastName: last},
		Delay:       delay,
	}
}

// demo is the script shipped with the binary. Delays are per record, not cumulative.
var demo = []chat.Record{
	say("pixelpanda", "Mira", "Chen", "hiii 👋", 0),
	say("nightowl_42", "Owen", "Lutz", "first time catching this live", 1200*time.Millisecond),
	joined("lofi_lena", "Lena", "Park", 1500*time.Millisecond),
	say("pixelpanda", "Mira", "Chen", "audio is crisp today", 2*time.Second),
	say("dev_dan", "Dan", "Okafor", "what editor theme is that?", 1800*time.Millisecond),
	say("lofi_lena", "Lena", "Park", "hello everyone!!", 900*time.Millisecond),
	joined("keyboard_kat", "Kat", "Ibarra", 2500*time.Millisecond),
	say("nightowl_42", "Owen", "Lutz", "lol that bug", 1100*time.Millisecond),
	say("dev_dan", "Dan", "Okafor", "ship it 🚀", 3*time.Second),
	say("keyboard_kat", "Kat", "Ibarra", "greetings from Lisbon", 1400*time.Millisecond),
	say("pixelpanda", "Mira", "Chen", "🔥🔥🔥", 700*time.Millisecond),
	joined("quietquokka", "Quinn", "Adebayo", 4*time.Second),
	say("quietquokka", "Quinn", "Adebayo", "been lurking for months, finally saying hi", 2200*time.Millisecond),
	say("lofi_lena", "Lena", "Park", "welcome quinn!", 1300*time.Millisecond),
	say("dev_dan", "Dan", "Okafor", "can you zoom in a bit?", 5*time.Second),
	say("nightowl_42", "Owen", "Lutz", "gg", 2*time.Second),
}

// Builtin returns the demo script source.
func Builtin() Static { return Static(demo) }
