package engine

import (
	"math"
	"math/rand"
	"testing"
)

func readyState() GameState {
	return GameState{
		Left:  Paddle{X: LeftPaddleX, Y: 250, TargetY: 250},
		Right: Paddle{X: RightPaddleX, Y: 250, TargetY: 250},
		LeftReady:  true,
		RightReady: true,
	}
}

func TestStepSingleTickWallBounce(t *testing.T) {
	state := readyState()
	state.Ball = Ball{X: 400, Y: 584, VX: 0, VY: 6}

	next := Step(state, 1.0/60.0, nil)

	if next.Ball.Y < 0 {
		t.Fatalf("expected ball.y clamped to >= 0, got %f", next.Ball.Y)
	}
	if next.Ball.VY != -6 {
		t.Fatalf("expected velocityY to flip to -6, got %f", next.Ball.VY)
	}
	if next.SequenceNumber != 1 {
		t.Fatalf("expected sequenceNumber 1, got %d", next.SequenceNumber)
	}
}

func TestStepLeftPaddleCenteredHit(t *testing.T) {
	state := readyState()
	state.Ball = Ball{X: 17, Y: 292, VX: -6, VY: 0}

	next := Step(state, 1.0/60.0, nil)

	if math.Abs(next.Ball.VX-6) > 0.01 {
		t.Fatalf("expected velocityX ~= 6, got %f", next.Ball.VX)
	}
	if math.Abs(next.Ball.VY) >= 0.01 {
		t.Fatalf("expected velocityY ~= 0, got %f", next.Ball.VY)
	}
	if math.Abs(next.Ball.X-16.1) > 0.01 {
		t.Fatalf("expected x ~= 16.1, got %f", next.Ball.X)
	}
	if next.LeftScore != 0 {
		t.Fatalf("expected leftScore unchanged, got %d", next.LeftScore)
	}
}

func TestStepNoOpWhenNotReady(t *testing.T) {
	state := readyState()
	state.RightReady = false
	state.Ball = Ball{X: 400, Y: 300, VX: 1, VY: 1}

	next := Step(state, 1.0/60.0, nil)
	if next != state {
		t.Fatalf("expected no-op state when players not ready")
	}
}

func TestStepDeltaZeroIsIdentityOnSteadyState(t *testing.T) {
	state := readyState()
	state.Ball = Ball{X: 400, Y: 300, VX: 6, VY: 0}

	next := Step(state, 0, nil)

	if next.Left.Y != state.Left.Y || next.Right.Y != state.Right.Y {
		t.Fatalf("expected paddles unchanged at dt=0")
	}
	if next.Ball.X != state.Ball.X || next.Ball.Y != state.Ball.Y {
		t.Fatalf("expected ball unmoved at dt=0")
	}
}

func TestStepScoringAtWinScoreEndsGame(t *testing.T) {
	state := readyState()
	state.LeftScore = WinScore - 1
	state.Ball = Ball{X: FieldWidth + 1, Y: 300, VX: 6, VY: 0}

	next := Step(state, 1.0/60.0, rand.New(rand.NewSource(1)))

	if !next.GameOver {
		t.Fatalf("expected game over after reaching win score")
	}
	if next.Winner != WinnerLeft {
		t.Fatalf("expected left to win, got winner=%d", next.Winner)
	}

	again := Step(next, 1.0/60.0, rand.New(rand.NewSource(1)))
	if again != next {
		t.Fatalf("expected further ticks to be no-ops once game over")
	}
}

func TestStepDeterministicGivenSeed(t *testing.T) {
	state := readyState()
	state.Ball = Ball{X: -1, Y: 300, VX: -6, VY: 0}

	a := Step(state, 1.0/60.0, rand.New(rand.NewSource(42)))
	b := Step(state, 1.0/60.0, rand.New(rand.NewSource(42)))

	if a != b {
		t.Fatalf("expected deterministic Step output for identical seed")
	}
}

func TestUpdateBotTargetTracksBall(t *testing.T) {
	state := readyState()
	state.Right.Y = 250
	state.Right.TargetY = 250
	state.Ball = Ball{X: 400, Y: 300, VX: 6, VY: 0}

	for i := 0; i < 60; i++ {
		state = UpdateBotTarget(state)
		state = Step(state, 1.0/60.0, nil)
	}

	const epsilon = PaddleSpeed * BotSpeedFactor
	if math.Abs(state.Right.Y-250) > epsilon*2 {
		t.Fatalf("expected right paddle to stabilise near 250, got %f", state.Right.Y)
	}
}

func TestResetBallServesTowardDirection(t *testing.T) {
	state := readyState()
	ResetBall(&state, -1, rand.New(rand.NewSource(7)))
	if state.Ball.VX >= 0 {
		t.Fatalf("expected negative velocityX when serving left, got %f", state.Ball.VX)
	}
	ResetBall(&state, 1, rand.New(rand.NewSource(7)))
	if state.Ball.VX <= 0 {
		t.Fatalf("expected positive velocityX when serving right, got %f", state.Ball.VX)
	}
}
