package server

import (
	"fmt"
	"math/rand"
)

// roomWords is the pool used for generated room names.
var roomWords = []string{
	"meow", "rmfosho", "pirate", "plunder", "cat", "ship",
	"fish", "web", "booty", "dabloon", "purr", "owo",
}

// generateRoomName creates a random room name in the format "<word>-<word>".
// Collisions are acceptable; room identity comes from the id, not the name.
func generateRoomName() string {
	first := roomWords[rand.Intn(len(roomWords))]
	second := roomWords[rand.Intn(len(roomWords))]
	return fmt.Sprintf("%s-%s", first, second)
}
