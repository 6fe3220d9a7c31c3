package server

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/nother/compiler"
	"github.com/chazu/nother/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "nother-lsp"

var lspLog = commonlog.GetLogger("nother.lsp")

// document is an open editor buffer and its latest analysis.
type document struct {
	text     string
	analysis *Analysis
}

// LspServer provides editor features for .nth files: diagnostics from
// lexing and block resolution, label completion, hover and go to
// definition.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new language server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("nother LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"@", ":"},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	doc := s.update(uri, params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, doc.analysis)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			doc := s.update(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, doc.analysis)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update stores new text for uri and analyses it.
func (s *LspServer) update(uri protocol.DocumentUri, text string) *document {
	doc := &document{text: text, analysis: Analyze(string(uri), text)}
	s.mu.Lock()
	s.docs[string(uri)] = doc
	s.mu.Unlock()
	return doc
}

func (s *LspServer) document(uri protocol.DocumentUri) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	return doc, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(doc.analysis, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(doc.analysis, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	doc, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	name, isRef := referenceName(word)
	if !isRef {
		return nil, nil
	}
	def := doc.analysis.Lookup(name)
	if def == nil {
		return nil, nil
	}
	return []protocol.Location{{URI: uri, Range: pointRange(def.Line, def.Col)}}, nil
}

// --- Analysis-backed logic ---

// complete offers labels after '@' and keywords otherwise.
func complete(a *Analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	if name, ok := strings.CutPrefix(prefix, "@"); ok {
		kind := protocol.CompletionItemKindFunction
		for _, label := range a.Names() {
			if !strings.HasPrefix(label, name) {
				continue
			}
			detail := "label"
			if a.Definitions[label].Private {
				detail = "private label"
			}
			insert := "@" + label
			items = append(items, protocol.CompletionItem{
				Label:      label,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &insert,
			})
		}
		return items
	}

	kind := protocol.CompletionItemKindKeyword
	for _, word := range compiler.Keywords() {
		if !strings.HasPrefix(word, prefix) {
			continue
		}
		in, ok := compiler.Keyword(word)
		if !ok {
			continue
		}
		detail := in.Op.String()
		insert := word
		items = append(items, protocol.CompletionItem{
			Label:      word,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &insert,
		})
	}
	return items
}

// hover describes a keyword's instruction or a referenced label.
func hover(a *Analysis, word string) *protocol.Hover {
	var b strings.Builder

	if in, ok := compiler.Keyword(word); ok {
		info := vm.GetOpcodeInfo(in.Op)
		fmt.Fprintf(&b, "**%s** lexes to `%s`", word, info.Name)
		if in.Op == vm.OpBeginDefine {
			fmt.Fprintf(&b, " (%s)", in.Vis)
		}
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "pops %s, pushes %s", count(info.StackPop), count(info.StackPush))
	} else if name, ok := referenceName(word); ok {
		def := a.Lookup(name)
		if def == nil {
			return nil
		}
		kind := "label"
		if def.Private {
			kind = "private label"
		}
		fmt.Fprintf(&b, "**%s** %s\n\ndefined at line %d, column %d", def.Name, kind, def.Line, def.Col)
	} else {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func count(n int) string {
	if n < 0 {
		return "a variable number"
	}
	return fmt.Sprint(n)
}

// referenceName strips the '@' and trailing modifiers from a reference
// word.
func referenceName(word string) (string, bool) {
	name, ok := strings.CutPrefix(word, "@")
	if !ok {
		return "", false
	}
	name = strings.TrimRight(name, "!?$")
	if name == "" || name == vm.ScopeSep {
		return "", false
	}
	return name, true
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, a *Analysis) {
	diagnostics := toProtocolDiagnostics(a.Diagnostics)
	lspLog.Debugf("%s: %d diagnostics", uri, len(diagnostics))

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func toProtocolDiagnostics(in []Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(in))
	source := lspName
	for _, d := range in {
		severity := protocol.DiagnosticSeverityError
		if d.Severity == SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		out = append(out, protocol.Diagnostic{
			Range:    pointRange(d.Line, d.Col),
			Severity: &severity,
			Source:   &source,
			Message:  d.Msg,
		})
	}
	return out
}

// pointRange converts a 1-based position to an empty LSP range.
func pointRange(line, col int) protocol.Range {
	p := protocol.Position{
		Line:      protocol.UInteger(max(line-1, 0)),
		Character: protocol.UInteger(max(col-1, 0)),
	}
	return protocol.Range{Start: p, End: p}
}

// --- Text extraction helpers ---

func isWordByte(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '"', '(', ')':
		return false
	}
	return true
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isWordByte(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the whole word under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isWordByte(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isWordByte(line[end]) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
