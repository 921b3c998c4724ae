package detector

import (
	"errors"
	"strconv"
	"testing"
)

func TestHand_Valid(t *testing.T) {
	tests := []struct {
		name string
		hand Hand
		want bool
	}{
		{"nil", nil, false},
		{"empty", Hand{}, false},
		{"twenty points", make(Hand, 20), false},
		{"twenty two points", make(Hand, 22), false},
		{"twenty one points", make(Hand, NumLandmarks), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hand.Valid(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHand_InFrame(t *testing.T) {
	t.Run("all inside", func(t *testing.T) {
		if got := DiagonalHand().InFrame(); got != 1 {
			t.Errorf("expected 1, got %f", got)
		}
	})

	t.Run("some outside", func(t *testing.T) {
		hand := DiagonalHand()
		for i := 0; i < 7; i++ {
			hand[i].X = -0.2
		}
		want := 14.0 / 21.0
		if got := hand.InFrame(); got != want {
			t.Errorf("expected %f, got %f", want, got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := (Hand{}).InFrame(); got != 0 {
			t.Errorf("expected 0, got %f", got)
		}
	})
}

func TestHandLandmarks_Hand(t *testing.T) {
	lm := OpenPalmLandmarks()
	hand := lm.Hand()

	if !hand.Valid() {
		t.Fatalf("expected valid hand, got %d points", len(hand))
	}
	if hand[IndexTip] != lm.Points[IndexTip] {
		t.Errorf("expected %v, got %v", lm.Points[IndexTip], hand[IndexTip])
	}

	// The returned slice must not alias the landmark array.
	hand[Wrist].X = 42
	if lm.Points[Wrist].X == 42 {
		t.Error("expected Hand to copy points")
	}
}

func TestDecodeHands(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		line := `{"hands":[{"points":[` + points(21) + `],"handedness":"Left","score":0.8}]}`
		hands, err := DecodeHands([]byte(line))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(hands))
		}
		if hands[0].Handedness != "Left" {
			t.Errorf("expected Left, got %s", hands[0].Handedness)
		}
		if hands[0].Points[20].X != 20 {
			t.Errorf("expected last X 20, got %f", hands[0].Points[20].X)
		}
	})

	t.Run("short detection is dropped", func(t *testing.T) {
		line := `{"hands":[{"points":[` + points(12) + `],"score":0.9}]}`
		hands, err := DecodeHands([]byte(line))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hands) != 0 {
			t.Errorf("expected no hands, got %d", len(hands))
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := DecodeHands([]byte("{")); err == nil {
			t.Error("expected error for malformed line")
		}
	})
}

func points(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += `{"x":` + strconv.Itoa(i) + `,"y":0.5}`
	}
	return s
}

func TestMediaPipeDetector_Filter(t *testing.T) {
	d := &MediaPipeDetector{config: MediaPipeConfig{Config: Config{MaxHands: 1, MinConfidence: 0.5}}}

	low := OpenPalmLandmarks()
	low.Score = 0.2
	high := FistLandmarks()

	got := d.filter([]HandLandmarks{low, high, OpenPalmLandmarks()})
	if len(got) != 1 {
		t.Fatalf("expected 1 hand, got %d", len(got))
	}
	if got[0].Points[IndexTip] != high.Points[IndexTip] {
		t.Error("expected the first confident detection to be kept")
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty hands by default", func(t *testing.T) {
		mock := NewMockDetector()

		hands, err := mock.Detect(nil)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if hands != nil {
			t.Errorf("expected nil hands, got %v", hands)
		}
	})

	t.Run("returns configured hands", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetHands([]HandLandmarks{PointLandmarks()})

		hands, _ := mock.Detect(nil)
		if len(hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(hands))
		}
		if mock.Calls() != 1 {
			t.Errorf("expected 1 call, got %d", mock.Calls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		want := errors.New("camera unplugged")
		mock.SetError(want)

		if _, err := mock.Detect(nil); !errors.Is(err, want) {
			t.Errorf("expected %v, got %v", want, err)
		}
	})
}

func TestFixtures(t *testing.T) {
	extended := func(lm HandLandmarks, tip, pip, mcp int) bool {
		return lm.Points[tip].Y < lm.Points[pip].Y && lm.Points[pip].Y < lm.Points[mcp].Y
	}

	t.Run("open palm has all fingers extended", func(t *testing.T) {
		lm := OpenPalmLandmarks()
		for _, f := range [][3]int{{IndexTip, IndexPIP, IndexMCP}, {MiddleTip, MiddlePIP, MiddleMCP}, {RingTip, RingPIP, RingMCP}, {PinkyTip, PinkyPIP, PinkyMCP}} {
			if !extended(lm, f[0], f[1], f[2]) {
				t.Errorf("expected finger with tip %d to be extended", f[0])
			}
		}
	})

	t.Run("fist has no finger extended", func(t *testing.T) {
		lm := FistLandmarks()
		for _, f := range [][3]int{{IndexTip, IndexPIP, IndexMCP}, {MiddleTip, MiddlePIP, MiddleMCP}, {RingTip, RingPIP, RingMCP}, {PinkyTip, PinkyPIP, PinkyMCP}} {
			if extended(lm, f[0], f[1], f[2]) {
				t.Errorf("expected finger with tip %d to be curled", f[0])
			}
		}
	})

	t.Run("fixtures lie inside the frame", func(t *testing.T) {
		for _, lm := range []HandLandmarks{OpenPalmLandmarks(), FistLandmarks(), PointLandmarks(), VictoryLandmarks(), ThumbsUpLandmarks()} {
			if got := lm.Hand().InFrame(); got != 1 {
				t.Errorf("expected all points in frame, got %f", got)
			}
		}
	})
}
