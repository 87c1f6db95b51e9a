// Package engine implements the authoritative Pong physics step: paddle
// convergence, continuous ball-paddle collision, scoring, and the
// predictive bot target. It is a pure package — no I/O, no locks, no
// package-level mutable state — so a Step is deterministic given its
// inputs and an explicitly injected random source.
package engine

import (
	"math"
	"math/rand"
)

// Field and actor dimensions, in pixels.
const (
	FieldWidth  = 800
	FieldHeight = 600
	PaddleW     = 16
	PaddleH     = 100
	BallSize    = 16

	PaddleSpeed     = 6.0
	BotSpeedFactor  = 0.85
	BallSpeed       = 6.0
	WinScore        = 5
	CollisionBuffer = 4.0

	// LeftPaddleX and RightPaddleX are the fixed horizontal positions of each paddle.
	LeftPaddleX  = 0
	RightPaddleX = FieldWidth - PaddleW
)

// Winner values for GameState.Winner.
const (
	WinnerNone  = 0
	WinnerLeft  = 1
	WinnerRight = 2
)

// Ball is the authoritative ball state.
type Ball struct {
	X, Y   float64
	VX, VY float64
}

// Paddle is the authoritative state of one paddle.
type Paddle struct {
	X, Y    float64
	TargetY float64
}

// GameState is the complete authoritative state of one session's match.
type GameState struct {
	Left  Paddle
	Right Paddle
	Ball  Ball

	LeftScore  int
	RightScore int

	GameOver bool
	Winner   int

	LeftReady  bool
	RightReady bool

	SequenceNumber uint64
}

// PlayersReady reports whether both sides have signalled readiness.
func (s GameState) PlayersReady() bool {
	return s.LeftReady && s.RightReady
}

// NewGameState constructs a fresh match in its initial, pre-serve configuration.
func NewGameState(rng *rand.Rand) GameState {
	state := GameState{
		Left:  Paddle{X: LeftPaddleX, Y: (FieldHeight - PaddleH) / 2, TargetY: (FieldHeight - PaddleH) / 2},
		Right: Paddle{X: RightPaddleX, Y: (FieldHeight - PaddleH) / 2, TargetY: (FieldHeight - PaddleH) / 2},
	}
	ResetBall(&state, randomServeDirection(rng), rng)
	return state
}

func randomServeDirection(rng *rand.Rand) int {
	if rng != nil && rng.Intn(2) == 0 {
		return -1
	}
	return 1
}

func moveToward(a, b, delta float64) float64 {
	if math.Abs(b-a) <= delta {
		return b
	}
	if b > a {
		return a + delta
	}
	return a - delta
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ResetBall re-centers the ball and serves it toward dir (-1 for left, +1 for right)
// using the supplied random source for the serve angle. rng may be nil, in which
// case the ball serves straight.
func ResetBall(state *GameState, dir int, rng *rand.Rand) {
	if state == nil {
		return
	}
	if dir == 0 {
		dir = 1
	}
	state.Ball.X = FieldWidth / 2
	state.Ball.Y = FieldHeight / 2

	angle := 0.0
	if rng != nil {
		angle = (rng.Float64()*2 - 1) * (math.Pi / 8)
	}
	state.Ball.VX = BallSpeed * float64(dir) * math.Cos(angle)
	state.Ball.VY = BallSpeed * math.Sin(angle)
}

// paddleRect returns the unexpanded collision AABB for a paddle, and the AABB
// expanded per spec §4.1 step 5 (+CollisionBuffer on Y both sides,
// +CollisionBuffer/2 on X both sides) used to catch fast tunneling balls.
func paddleRect(p Paddle) (rect, expanded aabb) {
	rect = aabb{minX: p.X, minY: p.Y, maxX: p.X + PaddleW, maxY: p.Y + PaddleH}
	expanded = aabb{
		minX: p.X - CollisionBuffer/2,
		maxX: p.X + PaddleW + CollisionBuffer/2,
		minY: p.Y - CollisionBuffer,
		maxY: p.Y + PaddleH + CollisionBuffer,
	}
	return
}

type aabb struct {
	minX, minY, maxX, maxY float64
}

func overlaps(a, b aabb) bool {
	return a.maxX > b.minX && a.minX < b.maxX && a.maxY > b.minY && a.minY < b.maxY
}

// sweptHit reports whether a ball moving from (px,py) to (x,y) (AABB of size
// BallSize×BallSize) crossed the paddle's near face between frames, or
// overlaps the paddle's unexpanded AABB this frame. The near face is the
// paddle side the ball travels toward; a ball that was not fully in front of
// it in the previous frame does not cross it. The expanded rectangle widens
// the crossing test so a fast ball cannot tunnel through in one tick.
func sweptHit(px, py, x, y float64, rect, expanded aabb) bool {
	ballNow := aabb{minX: x, minY: y, maxX: x + BallSize, maxY: y + BallSize}
	if overlaps(ballNow, rect) {
		return true
	}

	ballPrev := aabb{minX: px, minY: py, maxX: px + BallSize, maxY: py + BallSize}
	yBandNow := ballNow.maxY > expanded.minY && ballNow.minY < expanded.maxY
	yBandPrev := ballPrev.maxY > expanded.minY && ballPrev.minY < expanded.maxY
	if !yBandNow && !yBandPrev {
		return false
	}
	// The ball's leading edge moved from in front of the near face to inside
	// the expanded X band (or past it) during the frame.
	switch {
	case x < px:
		return ballPrev.minX >= rect.maxX && ballNow.minX < expanded.maxX
	case x > px:
		return ballPrev.maxX <= rect.minX && ballNow.maxX > expanded.minX
	}
	return false
}

// Step advances state by dt seconds following spec §4.1. It is a no-op when the
// game is over or the players are not both ready.
func Step(state GameState, dt float64, rng *rand.Rand) GameState {
	if state.GameOver || !state.PlayersReady() {
		return state
	}

	// 1. Paddle convergence.
	maxPaddleY := float64(FieldHeight - PaddleH)
	state.Left.Y = clamp(moveToward(state.Left.Y, state.Left.TargetY, PaddleSpeed*dt*60), 0, maxPaddleY)
	state.Right.Y = clamp(moveToward(state.Right.Y, state.Right.TargetY, PaddleSpeed*dt*60), 0, maxPaddleY)

	// 2. Record previous ball position.
	px, py := state.Ball.X, state.Ball.Y

	// 3. Ball integration.
	state.Ball.X += state.Ball.VX * dt * 60
	state.Ball.Y += state.Ball.VY * dt * 60

	// 4. Wall reflection.
	maxBallY := float64(FieldHeight - BallSize)
	if state.Ball.Y <= 0 {
		state.Ball.VY = math.Abs(state.Ball.VY)
		state.Ball.Y = 0
	} else if state.Ball.Y >= maxBallY {
		state.Ball.VY = -math.Abs(state.Ball.VY)
		state.Ball.Y = maxBallY
	}

	// 5 & 6. Continuous paddle collision + hit response. Tie-break: only consider
	// the paddle the ball is moving toward.
	if state.Ball.VX < 0 {
		rect, expanded := paddleRect(state.Left)
		if sweptHit(px, py, state.Ball.X, state.Ball.Y, rect, expanded) {
			applyLeftHit(&state)
		}
	} else if state.Ball.VX > 0 {
		rect, expanded := paddleRect(state.Right)
		if sweptHit(px, py, state.Ball.X, state.Ball.Y, rect, expanded) {
			applyRightHit(&state)
		}
	}

	// 7. Scoring.
	if state.Ball.X < 0 {
		state.RightScore++
		ResetBall(&state, -1, rng)
	} else if state.Ball.X > FieldWidth {
		state.LeftScore++
		ResetBall(&state, 1, rng)
	}
	if state.LeftScore >= WinScore || state.RightScore >= WinScore {
		state.GameOver = true
		if state.LeftScore >= WinScore {
			state.Winner = WinnerLeft
		} else {
			state.Winner = WinnerRight
		}
	}

	// 8. Sequence.
	state.SequenceNumber++

	return state
}

func applyLeftHit(state *GameState) {
	speed := math.Hypot(state.Ball.VX, state.Ball.VY)
	r := (state.Left.Y + PaddleH/2) - (state.Ball.Y + BallSize/2)
	n := clamp(r/(PaddleH/2), -1, 1)
	theta := n * 0.8
	state.Ball.VX = math.Abs(speed * math.Cos(theta))
	state.Ball.VY = -speed * math.Sin(theta)
	state.Ball.X = state.Left.X + PaddleW + 0.1
}

func applyRightHit(state *GameState) {
	speed := math.Hypot(state.Ball.VX, state.Ball.VY)
	r := (state.Right.Y + PaddleH/2) - (state.Ball.Y + BallSize/2)
	n := clamp(r/(PaddleH/2), -1, 1)
	theta := n * 0.8
	state.Ball.VX = -math.Abs(speed * math.Cos(theta))
	state.Ball.VY = -speed * math.Sin(theta)
	state.Ball.X = state.Right.X - BallSize - 0.1
}

// UpdateBotTarget computes the predictive target for the server-controlled
// right paddle and converges RightTargetY toward it by one bot-speed step.
// It never writes Right.Y directly; the next Step call performs the convergence.
func UpdateBotTarget(state GameState) GameState {
	yPred := state.Ball.Y
	if state.Ball.VX > 0 {
		travel := (RightPaddleX - state.Ball.X) / math.Abs(state.Ball.VX)
		yPred = clamp(state.Ball.Y+state.Ball.VY*travel, 0, FieldHeight-BallSize)
	}
	aim := clamp(yPred-PaddleH/2+BallSize/2, 0, FieldHeight-PaddleH)
	state.Right.TargetY = moveToward(state.Right.Y, aim, PaddleSpeed*BotSpeedFactor)
	return state
}
