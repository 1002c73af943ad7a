package canvas

import (
	"fmt"
	"strings"
)

type CommandType string

const (
	CmdCreateNote              CommandType = "create-note"
	CmdCreateRepurposedNode    CommandType = "create-repurposed-node"
	CmdCreateNoteFromContent   CommandType = "create-note-from-content"
	CmdCreateCourseFromContent CommandType = "create-course-from-content"
	CmdCreateQuizFromContent   CommandType = "create-quiz-from-content"
	CmdUpdateQuizNode          CommandType = "update-quiz-node"
)

// Offsets of derived nodes relative to their source.
const (
	derivedOffsetX = 350
	noteOffsetX    = 300
	noteOffsetY    = 50
)

// Command asks the canvas to splice in a node derived from SourceID, or for
// update-quiz-node to merge Data into the quiz node NodeID.
type Command struct {
	Type         CommandType    `json:"type"`
	SourceID     string         `json:"sourceId"`
	NodeID       string         `json:"nodeId,omitempty"`
	Content      string         `json:"content,omitempty"`
	Title        string         `json:"title,omitempty"`
	Format       string         `json:"format,omitempty"`
	SourceFormat string         `json:"sourceFormat,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Result reports what a command changed. Applied is false when the source
// node could not be found; that is not an error.
type Result struct {
	Applied bool  `json:"applied"`
	Node    *Node `json:"node,omitempty"`
	Edge    *Edge `json:"edge,omitempty"`
}

var formatColors = map[string]string{
	"twitter":    "#1DA1F2",
	"thread":     "#1DA1F2",
	"linkedin":   "#0A66C2",
	"newsletter": "#F59E0B",
	"blog":       "#10B981",
	"instagram":  "#E1306C",
	"youtube":    "#FF0000",
	"tiktok":     "#000000",
}

const defaultEdgeColor = "#8B5CF6"

// Apply executes one command.
func (s *Store) Apply(cmd Command) (Result, error) {
	switch cmd.Type {
	case CmdCreateNote, CmdCreateRepurposedNode, CmdCreateNoteFromContent,
		CmdCreateCourseFromContent, CmdCreateQuizFromContent:
		return s.applyDerive(cmd)
	case CmdUpdateQuizNode:
		return s.applyQuizUpdate(cmd)
	default:
		return Result{}, fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Type)
	}
}

func (s *Store) applyDerive(cmd Command) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(cmd.SourceID)
	if i < 0 {
		s.logger.Debug("command source not found, ignoring", "command", cmd.Type, "source_id", cmd.SourceID)
		return Result{}, nil
	}
	src := s.nodes[i]

	var (
		typ     NodeType
		pos     Position
		payload map[string]any
		label   string
		color   string
	)

	switch cmd.Type {
	case CmdCreateNote:
		typ, pos, label = TypeNote, src.Position.Offset(noteOffsetX, noteOffsetY), "note"
		payload = map[string]any{"content": cmd.Content}
	case CmdCreateNoteFromContent:
		typ, pos, label = TypeNote, src.Position.Offset(noteOffsetX, noteOffsetY), "from content"
		payload = map[string]any{"content": cmd.Content, "color": "blue"}
		if cmd.Title != "" {
			payload["title"] = cmd.Title
		}
	case CmdCreateRepurposedNode:
		typ, pos = TypeNote, src.Position.Offset(derivedOffsetX, 0)
		from := cmd.SourceFormat
		if from == "" {
			from = string(src.Type)
		}
		label = fmt.Sprintf("%s → %s", from, cmd.Format)
		color = formatColors[strings.ToLower(cmd.Format)]
		if color == "" {
			color = defaultEdgeColor
		}
		payload = map[string]any{"content": cmd.Content, "format": cmd.Format, "color": "purple"}
	case CmdCreateCourseFromContent:
		typ, pos, label = TypeCourse, src.Position.Offset(derivedOffsetX, 0), "course"
	case CmdCreateQuizFromContent:
		typ, pos, label = TypeQuiz, src.Position.Offset(derivedOffsetX, 0), "quiz"
	}

	if payload == nil {
		payload = map[string]any{}
	}
	for k, v := range cmd.Data {
		if _, set := payload[k]; !set {
			payload[k] = v
		}
	}
	payload["sourceId"] = src.ID

	n, err := s.addLocked(typ, pos, payload)
	if err != nil {
		return Result{}, err
	}
	e := s.addEdgeLocked(src.ID, n.ID, label, color)

	return Result{Applied: true, Node: &n, Edge: &e}, nil
}

func (s *Store) applyQuizUpdate(cmd Command) (Result, error) {
	id := cmd.NodeID
	if id == "" {
		id = cmd.SourceID
	}
	fields, err := normalize(cmd.Data)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || s.nodes[i].Type != TypeQuiz {
		s.logger.Debug("quiz node not found, ignoring update", "node_id", id)
		return Result{}, nil
	}
	for k, v := range fields {
		s.nodes[i].Data[k] = v
	}
	n := cloneNode(s.nodes[i])
	return Result{Applied: true, Node: &n}, nil
}
