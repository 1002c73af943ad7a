package canvas

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDerivedNodes(t *testing.T) {
	tests := []struct {
		name      string
		cmd       Command
		wantType  NodeType
		wantPos   Position
		wantLabel string
		check     func(t *testing.T, n *Node, e *Edge)
	}{
		{
			name:      "create note",
			cmd:       Command{Type: CmdCreateNote, Content: "idea"},
			wantType:  TypeNote,
			wantPos:   Position{X: 400, Y: 150},
			wantLabel: "note",
			check: func(t *testing.T, n *Node, e *Edge) {
				assert.Equal(t, "idea", n.Data["content"])
				assert.Equal(t, "yellow", n.Data["color"])
			},
		},
		{
			name:      "note from content",
			cmd:       Command{Type: CmdCreateNoteFromContent, Content: "summary", Title: "Key points"},
			wantType:  TypeNote,
			wantPos:   Position{X: 400, Y: 150},
			wantLabel: "from content",
			check: func(t *testing.T, n *Node, e *Edge) {
				assert.Equal(t, "Key points", n.Data["title"])
			},
		},
		{
			name:      "repurposed node",
			cmd:       Command{Type: CmdCreateRepurposedNode, Content: "Issue #1", SourceFormat: "tweet", Format: "newsletter"},
			wantType:  TypeNote,
			wantPos:   Position{X: 450, Y: 100},
			wantLabel: "tweet → newsletter",
			check: func(t *testing.T, n *Node, e *Edge) {
				assert.Equal(t, "newsletter", n.Data["format"])
				assert.Equal(t, "#F59E0B", e.Color)
			},
		},
		{
			name: "course from content",
			cmd: Command{Type: CmdCreateCourseFromContent, Data: map[string]any{
				"title":   "Coffee 101",
				"modules": []any{map[string]any{"title": "Beans"}},
			}},
			wantType:  TypeCourse,
			wantPos:   Position{X: 450, Y: 100},
			wantLabel: "course",
			check: func(t *testing.T, n *Node, e *Edge) {
				assert.Equal(t, "Coffee 101", n.Data["title"])
				assert.Equal(t, "", n.Data["description"])
				assert.Len(t, n.Data["modules"], 1)
			},
		},
		{
			name:      "quiz from content",
			cmd:       Command{Type: CmdCreateQuizFromContent, Data: map[string]any{"title": "Check"}},
			wantType:  TypeQuiz,
			wantPos:   Position{X: 450, Y: 100},
			wantLabel: "quiz",
			check: func(t *testing.T, n *Node, e *Edge) {
				assert.Equal(t, "medium", n.Data["difficulty"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			src, err := s.AddNodeFromDrop("document", Position{X: 100, Y: 100}, nil)
			require.NoError(t, err)

			tt.cmd.SourceID = src.ID
			res, err := s.Apply(tt.cmd)
			require.NoError(t, err)
			require.True(t, res.Applied)
			require.NotNil(t, res.Node)
			require.NotNil(t, res.Edge)

			assert.Equal(t, tt.wantType, res.Node.Type)
			assert.Equal(t, tt.wantPos, res.Node.Position)
			assert.Equal(t, src.ID, res.Node.Data["sourceId"])
			assert.Equal(t, src.ID, res.Edge.Source)
			assert.Equal(t, res.Node.ID, res.Edge.Target)
			assert.Equal(t, tt.wantLabel, res.Edge.Label)
			if tt.check != nil {
				tt.check(t, res.Node, res.Edge)
			}

			g := s.Snapshot()
			assert.Len(t, g.Nodes, 2)
			assert.Len(t, g.Edges, 1)
		})
	}
}

func TestApplyMissingSourceIsIgnored(t *testing.T) {
	s, _ := newTestStore(t)
	res, err := s.Apply(Command{Type: CmdCreateNote, SourceID: "nope", Content: "x"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, s.Snapshot().Nodes)
}

func TestApplyDoesNotMutateCommandData(t *testing.T) {
	s, _ := newTestStore(t)
	src, _ := s.AddNodeFromDrop("note", Position{}, nil)
	data := map[string]any{"title": "T"}

	_, err := s.Apply(Command{Type: CmdCreateQuizFromContent, SourceID: src.ID, Data: data})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "T"}, data)
}

func TestUpdateQuizNode(t *testing.T) {
	s, _ := newTestStore(t)
	quiz, _ := s.AddNodeFromDrop("quiz", Position{}, map[string]any{"title": "Draft"})
	note, _ := s.AddNodeFromDrop("note", Position{}, nil)

	res, err := s.Apply(Command{Type: CmdUpdateQuizNode, NodeID: quiz.ID, Data: map[string]any{
		"questions": []any{map[string]any{"question": "Q1"}},
	}})
	require.NoError(t, err)
	require.True(t, res.Applied)
	assert.Equal(t, "Draft", res.Node.Data["title"])
	assert.Len(t, res.Node.Data["questions"], 1)

	res, err = s.Apply(Command{Type: CmdUpdateQuizNode, NodeID: note.ID, Data: map[string]any{"title": "x"}})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	res, err = s.Apply(Command{Type: CmdUpdateQuizNode, NodeID: "missing"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
}

func TestApplyUnknownCommand(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Apply(Command{Type: "explode"})
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestConnectImageToAnalysis(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		var seenStatus any
		var s *Store
		analyzer := AnalyzerFunc(func(ctx context.Context, url string) (string, error) {
			for _, n := range s.Snapshot().Nodes {
				if n.Type == TypeAIAnalysis {
					seenStatus = n.Data["status"]
				}
			}
			assert.Equal(t, "https://cdn.example.com/desk.png", url)
			return "A tidy desk with a laptop.", nil
		})
		s, _ = newTestStore(t, WithImageAnalyzer(analyzer))

		img, _ := s.AddNodeFromDrop("image", Position{}, map[string]any{"url": "https://cdn.example.com/desk.png"})
		target, _ := s.AddNodeFromDrop("ai-analysis", Position{}, nil)

		_, err := s.Connect(ctx, img.ID, target.ID)
		require.NoError(t, err)

		got, _ := s.Node(target.ID)
		assert.Equal(t, StatusProcessing, seenStatus)
		assert.Equal(t, StatusDone, got.Data["status"])
		assert.Equal(t, "A tidy desk with a laptop.", got.Data["analysis"])
		assert.Equal(t, img.ID, got.Data["sourceId"])
	})

	t.Run("analyzer error", func(t *testing.T) {
		analyzer := AnalyzerFunc(func(ctx context.Context, url string) (string, error) {
			return "", errors.New("quota exceeded")
		})
		s, _ := newTestStore(t, WithImageAnalyzer(analyzer))

		img, _ := s.AddNodeFromDrop("image", Position{}, map[string]any{"url": "https://cdn.example.com/a.png"})
		target, _ := s.AddNodeFromDrop("ai-analysis", Position{}, nil)

		_, err := s.Connect(ctx, img.ID, target.ID)
		require.NoError(t, err)

		got, _ := s.Node(target.ID)
		assert.Equal(t, StatusError, got.Data["status"])
		assert.Contains(t, got.Data["analysis"], "quota exceeded")
	})

	t.Run("other pairs do not analyze", func(t *testing.T) {
		called := false
		analyzer := AnalyzerFunc(func(ctx context.Context, url string) (string, error) {
			called = true
			return "", nil
		})
		s, _ := newTestStore(t, WithImageAnalyzer(analyzer))

		doc, _ := s.AddNodeFromDrop("document", Position{}, nil)
		target, _ := s.AddNodeFromDrop("ai-analysis", Position{}, nil)

		_, err := s.Connect(ctx, doc.ID, target.ID)
		require.NoError(t, err)
		assert.False(t, called)

		got, _ := s.Node(target.ID)
		assert.Equal(t, StatusIdle, got.Data["status"])
	})

	t.Run("missing endpoint", func(t *testing.T) {
		s, _ := newTestStore(t)
		n, _ := s.AddNodeFromDrop("note", Position{}, nil)
		_, err := s.Connect(ctx, n.ID, "ghost")
		assert.True(t, errors.Is(err, ErrNodeNotFound))
		assert.Empty(t, s.Snapshot().Edges)
	})
}
