package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havenos/haven/internal/storage"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

// ImageAnalyzer produces a text analysis of the image at url.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, url string) (string, error)
}

// AnalyzerFunc adapts a function to ImageAnalyzer.
type AnalyzerFunc func(ctx context.Context, url string) (string, error)

func (f AnalyzerFunc) AnalyzeImage(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

const (
	nodesKey = "nodes.json"
	edgesKey = "edges.json"
	metaKey  = "meta.json"
)

type meta struct {
	Revision int64     `json:"revision"`
	SavedAt  time.Time `json:"savedAt"`
}

// Store holds one canvas. It is the single writer for that canvas: every
// mutation takes the store mutex, and Save refuses to overwrite a revision
// written by someone else.
type Store struct {
	id       string
	storage  storage.Storage
	analyzer ImageAnalyzer
	logger   *slog.Logger
	newID    func() string

	mu       sync.Mutex
	nodes    []Node
	edges    []Edge
	revision int64
}

type StoreOption func(*Store)

func WithImageAnalyzer(a ImageAnalyzer) StoreOption {
	return func(s *Store) {
		s.analyzer = a
	}
}

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithIDGenerator overrides uuid node/edge ids; used by tests.
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) {
		s.newID = gen
	}
}

func NewStore(id string, st storage.Storage, opts ...StoreOption) *Store {
	s := &Store{
		id:      id,
		storage: st,
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "canvas", "canvas_id", id)
	return s
}

func (s *Store) ID() string {
	return s.id
}

// Snapshot returns a deep copy of the current graph.
func (s *Store) Snapshot() Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Graph {
	g := Graph{
		Nodes:    make([]Node, len(s.nodes)),
		Edges:    make([]Edge, len(s.edges)),
		Revision: s.revision,
	}
	for i, n := range s.nodes {
		g.Nodes[i] = cloneNode(n)
	}
	copy(g.Edges, s.edges)
	return g
}

// Node returns a copy of the node with id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return cloneNode(s.nodes[i]), true
	}
	return Node{}, false
}

func (s *Store) indexOf(id string) int {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// AddNodeFromDrop creates a node with the default payload for typeTag,
// overlays payload, and appends it.
func (s *Store) AddNodeFromDrop(typeTag string, pos Position, payload map[string]any) (Node, error) {
	t, err := ParseNodeType(typeTag)
	if err != nil {
		return Node{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(t, pos, payload)
}

func (s *Store) addLocked(t NodeType, pos Position, payload map[string]any) (Node, error) {
	data, err := DefaultPayload(t)
	if err != nil {
		return Node{}, err
	}
	extra, err := normalize(payload)
	if err != nil {
		return Node{}, err
	}
	for k, v := range extra {
		data[k] = v
	}

	n := Node{ID: s.newID(), Type: t, Position: pos, Data: data}
	s.nodes = append(s.nodes, n)

	s.logger.Debug("node added", "node_id", n.ID, "type", t)
	return cloneNode(n), nil
}

func (s *Store) addEdgeLocked(source, target, label, color string) Edge {
	e := Edge{ID: s.newID(), Source: source, Target: target, Label: label, Color: color}
	s.edges = append(s.edges, e)
	return e
}

// UpdateNode merges fields into a node's payload and optionally moves it.
func (s *Store) UpdateNode(id string, pos *Position, fields map[string]any) (Node, error) {
	extra, err := normalize(fields)
	if err != nil {
		return Node{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	for k, v := range extra {
		s.nodes[i].Data[k] = v
	}
	if pos != nil {
		s.nodes[i].Position = *pos
	}
	return cloneNode(s.nodes[i]), nil
}

// Connect appends an edge between two existing nodes. Connecting an image
// node to an ai-analysis node runs one image analysis and records the result
// on the target, moving its status idle -> processing -> done|error.
func (s *Store) Connect(ctx context.Context, sourceID, targetID string) (Edge, error) {
	s.mu.Lock()
	si, ti := s.indexOf(sourceID), s.indexOf(targetID)
	if si < 0 || ti < 0 {
		s.mu.Unlock()
		missing := sourceID
		if si >= 0 {
			missing = targetID
		}
		return Edge{}, fmt.Errorf("%w: %s", ErrNodeNotFound, missing)
	}

	edge := s.addEdgeLocked(sourceID, targetID, "", "")

	analyze := s.nodes[si].Type == TypeImage && s.nodes[ti].Type == TypeAIAnalysis
	var imageURL string
	if analyze {
		imageURL = s.nodes[si].String("url")
		s.nodes[ti].Data["status"] = StatusProcessing
		s.nodes[ti].Data["sourceId"] = sourceID
	}
	s.mu.Unlock()

	if analyze {
		s.runAnalysis(ctx, targetID, imageURL)
	}
	return edge, nil
}

// runAnalysis calls the analyzer without holding the lock, then writes the
// outcome if the target node still exists.
func (s *Store) runAnalysis(ctx context.Context, targetID, imageURL string) {
	var (
		text string
		err  error
	)
	switch {
	case s.analyzer == nil:
		err = errors.New("image analysis is not configured")
	case imageURL == "":
		err = errors.New("source image has no url")
	default:
		text, err = s.analyzer.AnalyzeImage(ctx, imageURL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(targetID)
	if i < 0 {
		return
	}
	if err != nil {
		s.logger.Warn("image analysis failed", "node_id", targetID, "error", err)
		s.nodes[i].Data["status"] = StatusError
		s.nodes[i].Data["analysis"] = "Analysis failed: " + err.Error()
		return
	}
	s.nodes[i].Data["status"] = StatusDone
	s.nodes[i].Data["analysis"] = text
}

// DeleteNode removes a node and every edge touching it.
func (s *Store) DeleteNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
	s.dropEdgesLocked(map[string]bool{id: true})
	return true
}

// DeleteEdge removes a single edge.
func (s *Store) DeleteEdge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.edges {
		if s.edges[i].ID == id {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			return true
		}
	}
	return false
}

// DeleteByAssetID removes every node whose payload references assetID, and
// their edges. It returns the number of nodes removed.
func (s *Store) DeleteByAssetID(assetID string) int {
	if assetID == "" {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := map[string]bool{}
	kept := s.nodes[:0]
	for _, n := range s.nodes {
		if n.AssetID() == assetID {
			removed[n.ID] = true
			continue
		}
		kept = append(kept, n)
	}
	s.nodes = kept
	s.dropEdgesLocked(removed)

	if len(removed) > 0 {
		s.logger.Info("nodes removed for deleted asset", "asset_id", assetID, "count", len(removed))
	}
	return len(removed)
}

func (s *Store) dropEdgesLocked(nodeIDs map[string]bool) {
	if len(nodeIDs) == 0 {
		return
	}
	kept := s.edges[:0]
	for _, e := range s.edges {
		if nodeIDs[e.Source] || nodeIDs[e.Target] {
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
}

// Replace swaps in a whole graph sent by a client that loaded baseRevision.
// Nodes with unknown types and repeated node or edge ids are rejected; edges
// whose endpoints are missing are dropped.
func (s *Store) Replace(g Graph, baseRevision int64) error {
	nodes := make([]Node, 0, len(g.Nodes))
	ids := map[string]bool{}
	for _, n := range g.Nodes {
		if _, err := ParseNodeType(string(n.Type)); err != nil {
			return err
		}
		if n.ID == "" {
			return havenerr.Invalid("node without id")
		}
		if ids[n.ID] {
			return havenerr.Invalid("duplicate node id %q", n.ID)
		}
		data, err := normalize(n.Data)
		if err != nil {
			return err
		}
		n.Data = data
		nodes = append(nodes, n)
		ids[n.ID] = true
	}

	edges := make([]Edge, 0, len(g.Edges))
	edgeIDs := map[string]bool{}
	for _, e := range g.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			continue
		}
		if e.ID == "" {
			e.ID = s.newID()
		}
		if edgeIDs[e.ID] {
			return havenerr.Invalid("duplicate edge id %q", e.ID)
		}
		edgeIDs[e.ID] = true
		edges = append(edges, e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if baseRevision < s.revision {
		return fmt.Errorf("%w: client revision %d, current %d", ErrStaleCanvas, baseRevision, s.revision)
	}
	s.nodes, s.edges = nodes, edges
	return nil
}

// Load restores the canvas from storage. Missing or unreadable state is
// logged and the canvas starts empty.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes, s.edges, s.revision = nil, nil, 0

	var nodes []Node
	if !s.loadKey(ctx, nodesKey, &nodes) {
		return
	}
	var edges []Edge
	if !s.loadKey(ctx, edgesKey, &edges) {
		return
	}
	var m meta
	s.loadKey(ctx, metaKey, &m)

	for i := range nodes {
		if nodes[i].Data == nil {
			nodes[i].Data = map[string]any{}
		}
	}

	s.nodes, s.edges, s.revision = nodes, edges, m.Revision
	s.logger.Debug("canvas loaded", "nodes", len(nodes), "edges", len(edges), "revision", m.Revision)
}

func (s *Store) loadKey(ctx context.Context, name string, v any) bool {
	data, err := s.storage.Load(ctx, storage.Key(s.id, name))
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("no saved canvas state", "key", name)
		return false
	}
	if err != nil {
		s.logger.Warn("failed to read canvas state, starting empty", "key", name, "error", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("failed to parse canvas state, starting empty", "key", name, "error", err)
		return false
	}
	return true
}

// Save persists nodes and edges. It fails with ErrStaleCanvas when the
// stored revision is newer than the one this store last loaded or saved.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var persisted meta
	data, err := s.storage.Load(ctx, storage.Key(s.id, metaKey))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &persisted); err != nil {
			s.logger.Warn("ignoring unreadable canvas metadata", "error", err)
		}
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("reading canvas metadata: %w", err)
	}

	if persisted.Revision > s.revision {
		return fmt.Errorf("%w: stored revision %d, loaded %d", ErrStaleCanvas, persisted.Revision, s.revision)
	}

	nodes := s.nodes
	if nodes == nil {
		nodes = []Node{}
	}
	edges := s.edges
	if edges == nil {
		edges = []Edge{}
	}

	if err := s.saveKey(ctx, nodesKey, nodes); err != nil {
		return err
	}
	if err := s.saveKey(ctx, edgesKey, edges); err != nil {
		return err
	}
	next := meta{Revision: s.revision + 1, SavedAt: time.Now().UTC()}
	if err := s.saveKey(ctx, metaKey, next); err != nil {
		return err
	}
	s.revision = next.Revision

	s.logger.Debug("canvas saved", "nodes", len(nodes), "edges", len(edges), "revision", next.Revision)
	return nil
}

func (s *Store) saveKey(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := s.storage.Save(ctx, storage.Key(s.id, name), data); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	return nil
}
