package service

import (
	"math/rand/v2"
)

type UserRef struct {
	ID       int64
	Username string
	FullName string
	IsBot    bool
}

func (u UserRef) Handle() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FullName != "" {
		return u.FullName
	}
	return "пользователь"
}

// Snowball is the throw-a-snowball mini game.
type Snowball struct {
	texts     *Messages
	hitChance float64
	roll      func() float64
	pick      func(n int) int
}

func NewSnowball(texts *Messages, hitChance float64) *Snowball {
	return &Snowball{
		texts:     texts,
		hitChance: hitChance,
		roll:      rand.Float64,
		pick:      rand.IntN,
	}
}

// Throw returns the chat text describing the throw.
func (s *Snowball) Throw(thrower, target UserRef) string {
	if thrower.ID == target.ID {
		return render(s.texts.SnowballSelf, "thrower", thrower.Handle())
	}
	if target.IsBot {
		return render(s.texts.SnowballBot, "thrower", thrower.Handle())
	}

	phrases := s.texts.SnowballMisses
	if s.roll() < s.hitChance {
		phrases = s.texts.SnowballHits
	}
	phrase := phrases[s.pick(len(phrases))]
	return render(phrase, "thrower", thrower.Handle(), "target", target.Handle())
}
