package main

import (
	"strings"
)

// ball is a ball bouncing around a box.
type ball struct {
	x, y   int
	d      int
	vx, vy int
}

func newBall() *ball {
	return &ball{d: 20, vx: 10, vy: 5}
}

// step moves the ball one frame within a box of w by h, reporting whether
// it hit a wall.
func (b *ball) step(w, h int) (bounced bool) {
	b.x += b.vx
	if b.x < 0 {
		b.x = -b.x
		b.vx = -b.vx
		bounced = true
	} else if b.x+b.d > w {
		b.x -= b.x + b.d - w
		b.vx = -b.vx
		bounced = true
	}
	b.y += b.vy
	if b.y < 0 {
		b.y = -b.y
		b.vy = -b.vy
		bounced = true
	} else if b.y+b.d > h {
		b.y -= b.y + b.d - h
		b.vy = -b.vy
		bounced = true
	}
	return bounced
}

// render draws the box scaled down to cols by rows characters.
func (b *ball) render(w, h, cols, rows int) string {
	var sb strings.Builder
	cx := (b.x + b.d/2) * cols / max(w, 1)
	cy := (b.y + b.d/2) * rows / max(h, 1)
	border := "+" + strings.Repeat("-", cols) + "+\n"
	sb.WriteString(border)
	for row := range rows {
		sb.WriteByte('|')
		for col := range cols {
			if row == cy && col == cx {
				sb.WriteByte('o')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString("|\n")
	}
	sb.WriteString(border)
	return sb.String()
}
