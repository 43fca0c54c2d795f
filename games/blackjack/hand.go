package blackjack

import "fmt"

var suits = [4]string{"s", "h", "d", "c"}

// Card is one playing card. Rank runs 1 (ace) to 13 (king).
type Card struct {
	Rank int    `json:"rank"`
	Suit string `json:"suit"`
}

func cardFromIndex(i int) Card {
	return Card{Rank: i%13 + 1, Suit: suits[(i/13)%4]}
}

func (c Card) String() string {
	names := map[int]string{1: "A", 11: "J", 12: "Q", 13: "K"}
	if n, ok := names[c.Rank]; ok {
		return n + c.Suit
	}
	return fmt.Sprintf("%d%s", c.Rank, c.Suit)
}

// Points counts an ace as 1 and faces as 10.
func (c Card) Points() int {
	if c.Rank >= 10 {
		return 10
	}
	return c.Rank
}

type Hand []Card

// Score returns the best total and whether an ace is counted as 11.
func (h Hand) Score() (int, bool) {
	total, ace := 0, false
	for _, c := range h {
		total += c.Points()
		if c.Rank == 1 {
			ace = true
		}
	}
	if ace && total <= 11 {
		return total + 10, true
	}
	return total, false
}

func (h Hand) Total() int {
	t, _ := h.Score()
	return t
}

func (h Hand) Blackjack() bool {
	return len(h) == 2 && h.Total() == 21
}

func (h Hand) Busted() bool {
	return h.Total() > 21
}

// dealerMustDraw: the dealer draws below 17 and stands on every 17.
func (h Hand) dealerMustDraw() bool {
	return h.Total() < 17
}
