package graphml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hexfury/graphport/api/schemas"
	"github.com/hexfury/graphport/internal/batch"
	"github.com/hexfury/graphport/internal/progress"
)

const (
	// DefaultBatchSize is the unit-of-work count per batch before the
	// commit multiplier is applied.
	DefaultBatchSize = 40000
	// DefaultCommitMultiplier scales BatchSize into the commit granularity
	// handed to the batch transaction.
	DefaultCommitMultiplier = 10
	// DefaultRelType names relationships whose edge carries no label
	// attribute.
	DefaultRelType = "UNKNOWN"
)

// ReaderOptions controls how a document is materialized.
type ReaderOptions struct {
	// StoreNodeIDs copies each node's document id attribute into an "id"
	// property on the created node.
	StoreNodeIDs bool
	// ReadLabels interprets the labels attribute and the labels/label data
	// keys as graph labels. When off they are ordinary properties.
	ReadLabels bool
	// DefaultRelType overrides the type given to edges without a label
	// attribute.
	DefaultRelType string
	// BatchSize and CommitMultiplier multiply into the commit granularity.
	BatchSize        int
	CommitMultiplier int
}

// Reader imports GraphML documents into a graph store in one streaming
// pass. Only the GraphML element vocabulary is recognized; unknown elements
// are skipped structurally.
type Reader struct {
	store    schemas.GraphStore
	opts     ReaderOptions
	reporter progress.Reporter
	log      *zap.Logger
}

// NewReader builds a Reader. Zero option fields fall back to the package
// defaults; a nil reporter or logger is replaced with a no-op.
func NewReader(store schemas.GraphStore, opts ReaderOptions, reporter progress.Reporter, log *zap.Logger) *Reader {
	if opts.DefaultRelType == "" {
		opts.DefaultRelType = DefaultRelType
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.CommitMultiplier <= 0 {
		opts.CommitMultiplier = DefaultCommitMultiplier
	}
	if reporter == nil {
		reporter = progress.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{store: store, opts: opts, reporter: reporter, log: log.Named("graphml")}
}

// entityRef identifies the most recently created entity, the implicit
// target of <data> elements.
type entityRef struct {
	kind schemas.EntityKind
	id   int64
}

// Parse consumes one GraphML document and materializes its content in the
// store. It returns the number of nodes and relationships created. Batches
// committed before a failure stay committed; the remainder is rolled back.
func (r *Reader) Parse(ctx context.Context, src io.Reader) (created int64, err error) {
	tx, err := batch.Begin(ctx, r.store, r.opts.BatchSize*r.opts.CommitMultiplier, r.log)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := tx.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	scan := newTokenScanner(src)
	keys := NewRegistry()
	cache := make(map[string]int64, 1024*32)
	var last entityRef

	for {
		tok, err := scan.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return created, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "key":
			if err := r.declareKey(scan, keys, start); err != nil {
				return created, err
			}
		case "data":
			if err := r.handleData(ctx, scan, tx, keys, start, last); err != nil {
				return created, err
			}
		case "node":
			id, err := r.createNode(ctx, tx, cache, start)
			if err != nil {
				return created, err
			}
			last = entityRef{kind: schemas.KindNode, id: id}
			created++
		case "edge":
			id, err := r.createRelationship(ctx, tx, cache, start)
			if err != nil {
				return created, err
			}
			last = entityRef{kind: schemas.KindRelationship, id: id}
			created++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return created, err
	}
	r.log.Info("import finished",
		zap.Int64("entities", created),
		zap.Int("commits", tx.Commits()))
	return created, nil
}

// declareKey reads one <key> element and its optional <default> child into
// the registry.
func (r *Reader) declareKey(scan *tokenScanner, keys *Registry, start xml.StartElement) error {
	key, err := NewKey(
		attr(start, "id"),
		attr(start, "attr.name"),
		attr(start, "attr.type"),
		attr(start, "attr.list"),
		attr(start, "for"),
	)
	if err != nil {
		return err
	}

	next, err := scan.PeekSkipSpace()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if se, ok := next.(xml.StartElement); ok && se.Name.Local == "default" {
		if _, err := scan.Next(); err != nil {
			return err
		}
		text, err := scan.readText()
		if err != nil {
			return err
		}
		if err := key.SetDefault(text); err != nil {
			return err
		}
	}

	keys.Declare(key)
	return nil
}

// handleData applies one <data> element to the current entity. Data seen
// before any node or edge has no target and is skipped.
func (r *Reader) handleData(ctx context.Context, scan *tokenScanner, tx *batch.Tx, keys *Registry, start xml.StartElement, last entityRef) error {
	if last.kind == "" {
		return nil
	}

	keyID := attr(start, "key")
	key := keys.Resolve(keyID, last.kind)

	var value any
	next, err := scan.Peek()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if _, ok := next.(xml.CharData); ok {
		text, err := scan.readText()
		if err != nil {
			return err
		}
		if value, err = key.ParseValue(text); err != nil {
			return err
		}
	} else {
		value = key.DefaultValue()
	}
	if value == nil {
		// No text and no default: the property is simply absent.
		return nil
	}

	if r.opts.ReadLabels {
		switch {
		case last.kind == schemas.KindNode && keyID == "labels":
			return r.addLabels(ctx, tx, last.id, fmt.Sprint(value))
		case keyID == "label":
			// The label data element duplicates the edge's label attribute
			// on exported documents; storing it would fabricate a property.
			return nil
		}
	}

	if err := tx.Graph().SetProperty(ctx, last.kind, last.id, key.Name, value); err != nil {
		return err
	}
	r.reporter.Update(0, 0, 1)
	return nil
}

// labelSeparator splits label lists on colons with optional surrounding
// whitespace.
var labelSeparator = regexp.MustCompile(` *: *`)

func (r *Reader) addLabels(ctx context.Context, tx *batch.Tx, nodeID int64, raw string) error {
	for _, label := range labelSeparator.Split(raw, -1) {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if err := tx.Graph().AddLabel(ctx, nodeID, label); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) createNode(ctx context.Context, tx *batch.Tx, cache map[string]int64, start xml.StartElement) (int64, error) {
	if err := tx.Increment(ctx); err != nil {
		return 0, err
	}
	id, err := tx.Graph().CreateNode(ctx)
	if err != nil {
		return 0, err
	}
	if r.opts.ReadLabels {
		if labels := attr(start, "labels"); labels != "" {
			if err := r.addLabels(ctx, tx, id, labels); err != nil {
				return 0, err
			}
		}
	}
	externalID := attr(start, "id")
	if externalID != "" {
		if r.opts.StoreNodeIDs {
			if err := tx.Graph().SetProperty(ctx, schemas.KindNode, id, "id", externalID); err != nil {
				return 0, err
			}
		}
		cache[externalID] = id
	}
	r.reporter.Update(1, 0, 0)
	return id, nil
}

func (r *Reader) createRelationship(ctx context.Context, tx *batch.Tx, cache map[string]int64, start xml.StartElement) (int64, error) {
	if err := tx.Increment(ctx); err != nil {
		return 0, err
	}
	source := attr(start, "source")
	startID, ok := cache[source]
	if !ok {
		return 0, &UnknownEndpointError{Attr: "source", ID: source}
	}
	target := attr(start, "target")
	endID, ok := cache[target]
	if !ok {
		return 0, &UnknownEndpointError{Attr: "target", ID: target}
	}

	relType := r.opts.DefaultRelType
	if label, ok := lookupAttr(start, "label"); ok {
		relType = label
	}

	id, err := tx.Graph().CreateRelationship(ctx, startID, endID, relType)
	if err != nil {
		return 0, err
	}
	r.reporter.Update(0, 1, 0)
	return id, nil
}

// lookupAttr finds an attribute by local name, reporting presence so absent
// and empty attributes can be told apart.
func lookupAttr(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func attr(el xml.StartElement, name string) string {
	v, _ := lookupAttr(el, name)
	return v
}

// tokenScanner wraps an xml.Decoder with a one-token lookahead.
type tokenScanner struct {
	dec    *xml.Decoder
	peeked xml.Token
}

func newTokenScanner(src io.Reader) *tokenScanner {
	return &tokenScanner{dec: xml.NewDecoder(src)}
}

// Next returns the pending peeked token if any, otherwise pulls the next
// one from the decoder.
func (s *tokenScanner) Next() (xml.Token, error) {
	if s.peeked != nil {
		tok := s.peeked
		s.peeked = nil
		return tok, nil
	}
	return s.dec.Token()
}

// Peek returns the next token without consuming it.
func (s *tokenScanner) Peek() (xml.Token, error) {
	if s.peeked != nil {
		return s.peeked, nil
	}
	tok, err := s.dec.Token()
	if err != nil {
		return nil, err
	}
	// The decoder reuses token buffers, so anything held across calls
	// must be copied.
	s.peeked = xml.CopyToken(tok)
	return s.peeked, nil
}

// PeekSkipSpace discards whitespace-only character data, then peeks. Only
// safe between elements, where such text carries no meaning.
func (s *tokenScanner) PeekSkipSpace() (xml.Token, error) {
	for {
		tok, err := s.Peek()
		if err != nil {
			return nil, err
		}
		if cd, ok := tok.(xml.CharData); ok && strings.TrimSpace(string(cd)) == "" {
			s.peeked = nil
			continue
		}
		return tok, nil
	}
}

// readText consumes character data up to and including the enclosing
// element's end tag, coalescing runs split by CDATA sections or comments.
func (s *tokenScanner) readText() (string, error) {
	var sb strings.Builder
	for {
		tok, err := s.Next()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.Comment:
		case xml.EndElement:
			return sb.String(), nil
		default:
			return "", fmt.Errorf("graphml: unexpected %T inside a text element", tok)
		}
	}
}
